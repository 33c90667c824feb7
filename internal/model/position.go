package model

type Position struct {
	ISIN        string
	Title       string
	Quantity    int
	BuyPriceAvg int64 // minor currency units
}
