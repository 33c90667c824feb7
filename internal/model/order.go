package model

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

const OrderStatusExecuted = "executed"

// PlacedOrder is the placement result. Rejected carries the brokerage's
// structured "error" status, which is not an API failure and must be checked
// by the caller before activation.
type PlacedOrder struct {
	ID       string
	Rejected bool
}

type Order struct {
	ID            string
	Status        string
	ExecutedPrice int64 // minor currency units
}
