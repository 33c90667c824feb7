package model

import "github.com/shopspring/decimal"

type state int

const (
	DefaultState state = iota
	ExpectingInstrumentType
	ExpectingSearchQuery
	ExpectingInstrumentName
	ExpectingSide
	ExpectingQuantity
	ExpectingConfirmation
	ExpectingContinueDecision
	ExpectingQuickTrade
	ExpectingQuickTradeConfirmation
)

// Session accumulates one conversation's trade parameters. Zero value means
// no trade in progress; the whole struct is replaced on flow restart.
type Session struct {
	State          state
	InstrumentType string
	SearchQuery    string
	Candidates     map[string]string // name -> isin from the last lookup
	InstrumentName string
	ISIN           string
	Side           string
	Bid            decimal.Decimal
	Ask            decimal.Decimal
	Balance        int64 // minor currency units
	SharesOwned    int
	Quantity       int
	Total          decimal.Decimal
	OrderID        string
	OrderRejected  bool // structured "error" status from order placement
	AveragePrice   int64 // minor currency units, set after execution
}
