package lemonApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/lemon_trader_bot/config"
	"github.com/KotFed0t/lemon_trader_bot/internal/externalApi"
	"github.com/KotFed0t/lemon_trader_bot/internal/model"
	"github.com/KotFed0t/lemon_trader_bot/internal/model/lemonModel"
	"github.com/KotFed0t/lemon_trader_bot/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// LemonApi talks to the lemon.markets trading and market data APIs.
// Trading and data live on different hosts, hence two clients.
type LemonApi struct {
	trading *resty.Client
	data    *resty.Client
	cfg     *config.Config
}

func New(cfg *config.Config) *LemonApi {
	trading := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.LemonApi.TradingUrl).
		SetAuthToken(cfg.API.LemonApi.ApiKey)

	data := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.LemonApi.DataUrl).
		SetAuthToken(cfg.API.LemonApi.ApiKey)

	return &LemonApi{trading: trading, data: data, cfg: cfg}
}

func (a *LemonApi) SearchInstruments(ctx context.Context, query, instrumentType string) ([]model.Instrument, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start LemonApi.SearchInstruments request", slog.String("rqID", rqID), slog.String("query", query))

	resp, err := a.data.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"search": query,
			"type":   instrumentType,
		}).
		Get("/instruments")

	if err != nil {
		slog.Error("error while dialing LemonApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	if resp.IsError() {
		slog.Error("LemonApi.SearchInstruments bad status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return nil, externalApi.ErrUnexpectedResponse
	}

	raw := lemonModel.InstrumentsResponse{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into lemonModel.InstrumentsResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	instruments := make([]model.Instrument, 0, len(raw.Results))
	for _, r := range raw.Results {
		instruments = append(instruments, model.Instrument{ISIN: r.ISIN, Title: r.Title})
	}

	slog.Debug("LemonApi.SearchInstruments request complete", slog.String("rqID", rqID), slog.Int("count", len(instruments)))

	return instruments, nil
}

func (a *LemonApi) GetQuote(ctx context.Context, isin string) (model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start LemonApi.GetQuote request", slog.String("rqID", rqID), slog.String("isin", isin))

	resp, err := a.data.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"isin":     isin,
			"decimals": "true",
		}).
		Get("/quotes/latest")

	if err != nil {
		slog.Error("error while dialing LemonApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	if resp.IsError() {
		slog.Error("LemonApi.GetQuote bad status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return model.Quote{}, externalApi.ErrUnexpectedResponse
	}

	raw := lemonModel.QuotesResponse{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into lemonModel.QuotesResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	if len(raw.Results) == 0 {
		return model.Quote{}, externalApi.ErrNotFound
	}

	quote := model.Quote{
		Bid: decimal.NewFromFloat(raw.Results[0].Bid),
		Ask: decimal.NewFromFloat(raw.Results[0].Ask),
	}

	slog.Debug("LemonApi.GetQuote request complete", slog.String("rqID", rqID))

	return quote, nil
}

func (a *LemonApi) GetBalance(ctx context.Context) (int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start LemonApi.GetBalance request", slog.String("rqID", rqID))

	resp, err := a.trading.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get("/account")

	if err != nil {
		slog.Error("error while dialing LemonApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return 0, err
	}

	if resp.IsError() {
		slog.Error("LemonApi.GetBalance bad status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return 0, externalApi.ErrUnexpectedResponse
	}

	raw := lemonModel.AccountResponse{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into lemonModel.AccountResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return 0, err
	}

	slog.Debug("LemonApi.GetBalance request complete", slog.String("rqID", rqID))

	return raw.Results.Balance, nil
}

func (a *LemonApi) GetPositions(ctx context.Context) ([]model.Position, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start LemonApi.GetPositions request", slog.String("rqID", rqID))

	resp, err := a.trading.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get("/positions")

	if err != nil {
		slog.Error("error while dialing LemonApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	if resp.IsError() {
		slog.Error("LemonApi.GetPositions bad status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return nil, externalApi.ErrUnexpectedResponse
	}

	raw := lemonModel.PositionsResponse{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into lemonModel.PositionsResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	positions := make([]model.Position, 0, len(raw.Results))
	for _, r := range raw.Results {
		positions = append(positions, model.Position{
			ISIN:        r.ISIN,
			Title:       r.Title,
			Quantity:    r.Quantity,
			BuyPriceAvg: r.BuyPriceAvg,
		})
	}

	slog.Debug("LemonApi.GetPositions request complete", slog.String("rqID", rqID))

	return positions, nil
}

func (a *LemonApi) PlaceOrder(ctx context.Context, isin, expiresAt string, quantity int, side string) (model.PlacedOrder, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug(
		"start LemonApi.PlaceOrder request",
		slog.String("rqID", rqID),
		slog.String("isin", isin),
		slog.Int("quantity", quantity),
		slog.String("side", side),
	)

	resp, err := a.trading.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetBody(map[string]any{
			"isin":       isin,
			"expires_at": expiresAt,
			"quantity":   quantity,
			"side":       side,
		}).
		Post("/orders")

	if err != nil {
		slog.Error("error while dialing LemonApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.PlacedOrder{}, err
	}

	raw := lemonModel.OrderResponse{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into lemonModel.OrderResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.PlacedOrder{}, err
	}

	// "error" status is a structured rejection (e.g. insufficient holdings),
	// not a transport failure. The caller decides what to do with it.
	if raw.Status == "error" {
		slog.Debug("LemonApi.PlaceOrder rejected", slog.String("rqID", rqID))
		return model.PlacedOrder{Rejected: true}, nil
	}

	if resp.IsError() || raw.Results.ID == "" {
		slog.Error("LemonApi.PlaceOrder bad response", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return model.PlacedOrder{}, externalApi.ErrUnexpectedResponse
	}

	slog.Debug("LemonApi.PlaceOrder request complete", slog.String("rqID", rqID), slog.String("orderID", raw.Results.ID))

	return model.PlacedOrder{ID: raw.Results.ID}, nil
}

func (a *LemonApi) ActivateOrder(ctx context.Context, orderID string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start LemonApi.ActivateOrder request", slog.String("rqID", rqID), slog.String("orderID", orderID))

	resp, err := a.trading.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Post(fmt.Sprintf("/orders/%s/activate", orderID))

	if err != nil {
		slog.Error("error while dialing LemonApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return err
	}

	if resp.IsError() {
		slog.Error("LemonApi.ActivateOrder bad status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return externalApi.ErrUnexpectedResponse
	}

	slog.Debug("LemonApi.ActivateOrder request complete", slog.String("rqID", rqID))

	return nil
}

func (a *LemonApi) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start LemonApi.GetOrder request", slog.String("rqID", rqID), slog.String("orderID", orderID))

	resp, err := a.trading.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(fmt.Sprintf("/orders/%s", orderID))

	if err != nil {
		slog.Error("error while dialing LemonApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Order{}, err
	}

	if resp.IsError() {
		slog.Error("LemonApi.GetOrder bad status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return model.Order{}, externalApi.ErrUnexpectedResponse
	}

	raw := lemonModel.OrderResponse{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into lemonModel.OrderResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Order{}, err
	}

	slog.Debug("LemonApi.GetOrder request complete", slog.String("rqID", rqID), slog.String("status", raw.Results.Status))

	return model.Order{
		ID:            raw.Results.ID,
		Status:        raw.Results.Status,
		ExecutedPrice: raw.Results.ExecutedPrice,
	}, nil
}

func (a *LemonApi) DeleteOrder(ctx context.Context, orderID string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start LemonApi.DeleteOrder request", slog.String("rqID", rqID), slog.String("orderID", orderID))

	resp, err := a.trading.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Delete(fmt.Sprintf("/orders/%s", orderID))

	if err != nil {
		slog.Error("error while dialing LemonApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return err
	}

	if resp.IsError() {
		slog.Error("LemonApi.DeleteOrder bad status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return externalApi.ErrUnexpectedResponse
	}

	slog.Debug("LemonApi.DeleteOrder request complete", slog.String("rqID", rqID))

	return nil
}

func (a *LemonApi) GetVenue(ctx context.Context) (model.VenueStatus, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start LemonApi.GetVenue request", slog.String("rqID", rqID))

	resp, err := a.data.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("mic", a.cfg.API.LemonApi.VenueMic).
		Get("/venues")

	if err != nil {
		slog.Error("error while dialing LemonApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.VenueStatus{}, err
	}

	if resp.IsError() {
		slog.Error("LemonApi.GetVenue bad status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return model.VenueStatus{}, externalApi.ErrUnexpectedResponse
	}

	raw := lemonModel.VenuesResponse{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into lemonModel.VenuesResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.VenueStatus{}, err
	}

	if len(raw.Results) == 0 {
		return model.VenueStatus{}, externalApi.ErrNotFound
	}

	venue := raw.Results[0]
	status := model.VenueStatus{
		IsOpen:          venue.IsOpen,
		NextOpeningTime: venue.OpeningHours.Start,
	}
	if len(venue.OpeningDays) > 0 {
		status.NextOpeningDay = venue.OpeningDays[0]
	}

	slog.Debug("LemonApi.GetVenue request complete", slog.String("rqID", rqID))

	return status, nil
}
