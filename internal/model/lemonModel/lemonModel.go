package lemonModel

type InstrumentsResponse struct {
	Results []InstrumentResult `json:"results"`
}

type InstrumentResult struct {
	ISIN  string `json:"isin"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type QuotesResponse struct {
	Results []QuoteResult `json:"results"`
}

type QuoteResult struct {
	ISIN string  `json:"isin"`
	Bid  float64 `json:"b"`
	Ask  float64 `json:"a"`
}

type AccountResponse struct {
	Results AccountResult `json:"results"`
}

type AccountResult struct {
	Balance int64 `json:"balance"`
}

type PositionsResponse struct {
	Results []PositionResult `json:"results"`
}

type PositionResult struct {
	ISIN        string `json:"isin"`
	Title       string `json:"isin_title"`
	Quantity    int    `json:"quantity"`
	BuyPriceAvg int64  `json:"buy_price_avg"`
}

type OrderResponse struct {
	Status  string      `json:"status"`
	Results OrderResult `json:"results"`
}

type OrderResult struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	ExecutedPrice int64  `json:"executed_price"`
}

type VenuesResponse struct {
	Results []VenueResult `json:"results"`
}

type VenueResult struct {
	Name         string       `json:"name"`
	Mic          string       `json:"mic"`
	IsOpen       bool         `json:"is_open"`
	OpeningDays  []string     `json:"opening_days"`
	OpeningHours OpeningHours `json:"opening_hours"`
}

type OpeningHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}
