package model

import "github.com/shopspring/decimal"

const (
	TypeStock = "stock"
	TypeETF   = "etf"
)

type Instrument struct {
	ISIN  string
	Title string
}

type Quote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

type VenueStatus struct {
	IsOpen          bool
	NextOpeningDay  string
	NextOpeningTime string
}
