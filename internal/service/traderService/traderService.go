package traderService

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/KotFed0t/lemon_trader_bot/config"
	"github.com/KotFed0t/lemon_trader_bot/internal/externalApi"
	"github.com/KotFed0t/lemon_trader_bot/internal/model"
	"github.com/KotFed0t/lemon_trader_bot/internal/service"
	"github.com/KotFed0t/lemon_trader_bot/utils"
)

type LemonApi interface {
	SearchInstruments(ctx context.Context, query, instrumentType string) ([]model.Instrument, error)
	GetQuote(ctx context.Context, isin string) (model.Quote, error)
	GetBalance(ctx context.Context) (int64, error)
	GetPositions(ctx context.Context) ([]model.Position, error)
	PlaceOrder(ctx context.Context, isin, expiresAt string, quantity int, side string) (model.PlacedOrder, error)
	ActivateOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (model.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	GetVenue(ctx context.Context) (model.VenueStatus, error)
}

type Cache interface {
	SetMemeStocks(ctx context.Context, titles []string) error
	GetMemeStocks(ctx context.Context) ([]string, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, positions []model.Position) (fileBytes []byte, fileExtension string, err error)
}

// search terms used to build the /moon meme stock pool
var memeSearchTerms = []string{"gamestop", "amc", "blackberry", "nokia", "palantir"}

type TraderService struct {
	cfg             *config.Config
	lemonApi        LemonApi
	cache           Cache
	reportGenerator ReportGenerator
}

func New(cfg *config.Config, lemonApi LemonApi, cache Cache, reportGenerator ReportGenerator) *TraderService {
	return &TraderService{
		cfg:             cfg,
		lemonApi:        lemonApi,
		cache:           cache,
		reportGenerator: reportGenerator,
	}
}

// SearchInstruments returns candidate instruments as a name -> isin map for
// the selection keyboard.
func (s *TraderService) SearchInstruments(ctx context.Context, query, instrumentType string) (map[string]string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.SearchInstruments"

	slog.Debug("SearchInstruments start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		slog.Debug("SearchInstruments finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	}()

	instruments, err := s.lemonApi.SearchInstruments(ctx, query, instrumentType)
	if err != nil {
		slog.Error("got error from lemonApi.SearchInstruments", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	candidates := make(map[string]string, len(instruments))
	for _, instrument := range instruments {
		candidates[instrument.Title] = instrument.ISIN
	}

	return candidates, nil
}

// QuickLookup resolves a search term straight to a single instrument.
func (s *TraderService) QuickLookup(ctx context.Context, search, instrumentType string) (model.Instrument, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.QuickLookup"

	slog.Debug("QuickLookup start", slog.String("rqID", rqID), slog.String("op", op), slog.String("search", search))
	defer func() {
		slog.Debug("QuickLookup finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("search", search))
	}()

	instruments, err := s.lemonApi.SearchInstruments(ctx, search, instrumentType)
	if err != nil {
		slog.Error("got error from lemonApi.SearchInstruments", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Instrument{}, err
	}

	if len(instruments) == 0 {
		slog.Warn("no instruments found", slog.String("rqID", rqID), slog.String("op", op), slog.String("search", search))
		return model.Instrument{}, service.ErrNotFound
	}

	return instruments[0], nil
}

func (s *TraderService) GetQuote(ctx context.Context, isin string) (model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.GetQuote"

	quote, err := s.lemonApi.GetQuote(ctx, isin)
	if err != nil {
		slog.Error("got error from lemonApi.GetQuote", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Quote{}, err
	}

	return quote, nil
}

func (s *TraderService) GetBalance(ctx context.Context) (int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.GetBalance"

	balance, err := s.lemonApi.GetBalance(ctx)
	if err != nil {
		slog.Error("got error from lemonApi.GetBalance", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return balance, nil
}

// GetSharesOwned returns the held quantity of the given instrument, zero if
// it is not in the portfolio.
func (s *TraderService) GetSharesOwned(ctx context.Context, isin string) (int, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.GetSharesOwned"

	positions, err := s.lemonApi.GetPositions(ctx)
	if err != nil {
		slog.Error("got error from lemonApi.GetPositions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	sharesOwned := 0
	for _, position := range positions {
		if position.ISIN == isin {
			sharesOwned = position.Quantity
		}
	}

	return sharesOwned, nil
}

func (s *TraderService) GetPositions(ctx context.Context) ([]model.Position, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.GetPositions"

	positions, err := s.lemonApi.GetPositions(ctx)
	if err != nil {
		slog.Error("got error from lemonApi.GetPositions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return positions, nil
}

// PlaceOrder places an order with the configured short expiry. The order
// still has to be activated before the brokerage processes it.
func (s *TraderService) PlaceOrder(ctx context.Context, isin string, quantity int, side string) (model.PlacedOrder, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.PlaceOrder"

	slog.Debug(
		"PlaceOrder start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.String("isin", isin),
		slog.Int("quantity", quantity),
		slog.String("side", side),
	)
	defer func() {
		slog.Debug("PlaceOrder finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("isin", isin))
	}()

	placedOrder, err := s.lemonApi.PlaceOrder(ctx, isin, s.cfg.Order.Expiry, quantity, side)
	if err != nil {
		slog.Error("got error from lemonApi.PlaceOrder", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.PlacedOrder{}, err
	}

	return placedOrder, nil
}

func (s *TraderService) ActivateOrder(ctx context.Context, orderID string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.ActivateOrder"

	err := s.lemonApi.ActivateOrder(ctx, orderID)
	if err != nil {
		slog.Error("got error from lemonApi.ActivateOrder", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// AwaitExecution polls the order until it is executed and returns the
// executed price in minor currency units. With deadline > 0 a non-executed
// order is deleted once the deadline elapses and ErrExecutionTimeout is
// returned; with zero deadline the loop runs until execution or ctx
// cancellation.
func (s *TraderService) AwaitExecution(ctx context.Context, orderID string, deadline time.Duration) (int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.AwaitExecution"

	slog.Debug(
		"AwaitExecution start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.String("orderID", orderID),
		slog.Duration("deadline", deadline),
	)

	var deadlineAt time.Time
	if deadline > 0 {
		deadlineAt = time.Now().Add(deadline)
	}

	for {
		order, err := s.lemonApi.GetOrder(ctx, orderID)
		if err != nil {
			slog.Error("got error from lemonApi.GetOrder", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return 0, err
		}

		if order.Status == model.OrderStatusExecuted {
			slog.Debug(
				"AwaitExecution executed",
				slog.String("rqID", rqID),
				slog.String("op", op),
				slog.Int64("executedPrice", order.ExecutedPrice),
			)
			return order.ExecutedPrice, nil
		}

		if !deadlineAt.IsZero() && !time.Now().Before(deadlineAt) {
			slog.Warn("AwaitExecution deadline elapsed, deleting order", slog.String("rqID", rqID), slog.String("op", op), slog.String("orderID", orderID))
			if err := s.lemonApi.DeleteOrder(ctx, orderID); err != nil {
				slog.Error("got error from lemonApi.DeleteOrder", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			}
			return 0, service.ErrExecutionTimeout
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(s.cfg.Order.PollInterval):
		}
	}
}

func (s *TraderService) IsVenueOpen(ctx context.Context) (model.VenueStatus, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.IsVenueOpen"

	venue, err := s.lemonApi.GetVenue(ctx)
	if err != nil {
		slog.Error("got error from lemonApi.GetVenue", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.VenueStatus{}, err
	}

	return venue, nil
}

// GetMemeStock picks a random title from the cached meme pool, refilling the
// cache from the instruments API on a miss.
func (s *TraderService) GetMemeStock(ctx context.Context) (string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.GetMemeStock"

	titles, err := s.cache.GetMemeStocks(ctx)
	if err != nil {
		slog.Warn("can't get meme stocks from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

		titles, err = s.fetchMemeStocks(ctx)
		if err != nil {
			return "", err
		}

		_ = s.cache.SetMemeStocks(ctx, titles)
	}

	if len(titles) == 0 {
		return "", service.ErrNotFound
	}

	return titles[rand.Intn(len(titles))], nil
}

// FillMemeCache is the scheduler job body.
func (s *TraderService) FillMemeCache(ctx context.Context) error {
	titles, err := s.fetchMemeStocks(ctx)
	if err != nil {
		return err
	}

	return s.cache.SetMemeStocks(ctx, titles)
}

func (s *TraderService) fetchMemeStocks(ctx context.Context) ([]string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.fetchMemeStocks"

	titles := make([]string, 0, len(memeSearchTerms))
	for _, term := range memeSearchTerms {
		instruments, err := s.lemonApi.SearchInstruments(ctx, term, model.TypeStock)
		if err != nil {
			if errors.Is(err, externalApi.ErrNotFound) {
				continue
			}
			slog.Error("got error from lemonApi.SearchInstruments", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, err
		}
		for _, instrument := range instruments {
			titles = append(titles, instrument.Title)
		}
	}

	return titles, nil
}

// BuildPositionsReport renders currently held positions into a spreadsheet.
func (s *TraderService) BuildPositionsReport(ctx context.Context) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TraderService.BuildPositionsReport"

	slog.Debug("BuildPositionsReport start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("BuildPositionsReport finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	positions, err := s.lemonApi.GetPositions(ctx)
	if err != nil {
		slog.Error("got error from lemonApi.GetPositions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	held := make([]model.Position, 0, len(positions))
	for _, position := range positions {
		if position.Quantity != 0 {
			held = append(held, position)
		}
	}

	return s.reportGenerator.Generate(ctx, held)
}
