package telegram

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KotFed0t/lemon_trader_bot/config"
	"github.com/KotFed0t/lemon_trader_bot/data/session"
	"github.com/KotFed0t/lemon_trader_bot/internal/converter/telebotConverter"
	"github.com/KotFed0t/lemon_trader_bot/internal/model"
	"github.com/KotFed0t/lemon_trader_bot/utils"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

const (
	internalErrMsg = "There was an error, ending the conversation. If you'd like to try again, send /start."
	farewellMsg    = "Bye! Come back if you would like to make any other trades."
)

type TraderService interface {
	SearchInstruments(ctx context.Context, query, instrumentType string) (map[string]string, error)
	QuickLookup(ctx context.Context, search, instrumentType string) (model.Instrument, error)
	GetQuote(ctx context.Context, isin string) (model.Quote, error)
	GetBalance(ctx context.Context) (int64, error)
	GetSharesOwned(ctx context.Context, isin string) (int, error)
	GetPositions(ctx context.Context) ([]model.Position, error)
	PlaceOrder(ctx context.Context, isin string, quantity int, side string) (model.PlacedOrder, error)
	ActivateOrder(ctx context.Context, orderID string) error
	AwaitExecution(ctx context.Context, orderID string, deadline time.Duration) (int64, error)
	IsVenueOpen(ctx context.Context) (model.VenueStatus, error)
	GetMemeStock(ctx context.Context) (string, error)
	BuildPositionsReport(ctx context.Context) (fileBytes []byte, fileExtension string, err error)
}

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	SetSession(ctx context.Context, key string, chatSession model.Session) error
}

type Controller struct {
	cfg           *config.Config
	traderService TraderService
	session       Session
}

func NewController(cfg *config.Config, traderService TraderService, session Session) *Controller {
	return &Controller{
		cfg:           cfg,
		traderService: traderService,
		session:       session,
	}
}

func (ctrl *Controller) Start(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	// fresh session on /start
	if err := ctrl.saveSession(ctx, c, model.Session{}); err != nil {
		return c.Send(internalErrMsg)
	}

	venue, err := ctrl.traderService.IsVenueOpen(ctx)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if !venue.IsOpen {
		return c.Send(
			"This exchange is closed at the moment. Please try again on " +
				venue.NextOpeningDay + " at " + venue.NextOpeningTime + ".",
		)
	}

	user := ""
	if c.Sender() != nil {
		user = c.Sender().FirstName
	}

	return c.Send(
		"Hi " + user + "! I'm the Lemon Trader Bot! I can place trades for you using the lemon.markets API. " +
			"You can control me by sending or clicking on these commands:\n\n" +
			"Regular Commands (no input required):\n" +
			"/trade - place trade\n" +
			"/quicktrade - place shortform trade\n" +
			"/positions - list your positions\n" +
			"/report - export your positions as a spreadsheet\n" +
			"/moon - meme stock generator\n",
	)
}

// Trade starts the guided flow by asking for the instrument type.
func (ctrl *Controller) Trade(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession := model.Session{State: model.ExpectingInstrumentType}
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send("What type of instrument do you want to trade?", telebotConverter.StockETFKeyboard())
}

func (ctrl *Controller) ProcessInstrumentType(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	chatSession.InstrumentType = strings.ToLower(c.Message().Text)
	chatSession.State = model.ExpectingSearchQuery
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send("What is the name of the " + chatSession.InstrumentType + " you would like to trade?")
}

func (ctrl *Controller) ProcessSearchQuery(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	chatSession.SearchQuery = strings.ToLower(c.Message().Text)

	candidates, err := ctrl.traderService.SearchInstruments(ctx, chatSession.SearchQuery, chatSession.InstrumentType)
	if err != nil {
		return ctrl.endWithError(ctx, c)
	}

	chatSession.Candidates = candidates
	chatSession.State = model.ExpectingInstrumentName
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	names := make([]string, 0, len(candidates))
	for name := range candidates {
		names = append(names, name)
	}
	sort.Strings(names)

	return c.Send(
		`Please choose the instrument you wish to trade. If you do not see the desired instrument, press "Other".`,
		telebotConverter.InstrumentsKeyboard(names),
	)
}

func (ctrl *Controller) ProcessInstrumentName(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	text := c.Message().Text

	if text == "Other" {
		chatSession.State = model.ExpectingSearchQuery
		if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
			return c.Send(internalErrMsg)
		}
		return c.Send("Please be more specific in your search query.")
	}

	isin, ok := chatSession.Candidates[text]
	if !ok {
		return c.Send(`Please choose one of the listed instruments or press "Other".`)
	}

	chatSession.InstrumentName = text
	chatSession.ISIN = isin
	chatSession.State = model.ExpectingSide
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send("Would you like to buy or sell "+chatSession.InstrumentName+"?", telebotConverter.BuySellKeyboard())
}

// ProcessSide snapshots the quote and, depending on the side, the balance or
// the held quantity, then asks for the share count.
func (ctrl *Controller) ProcessSide(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	chatSession.Side = strings.ToLower(c.Message().Text)

	quote, err := ctrl.traderService.GetQuote(ctx, chatSession.ISIN)
	if err != nil {
		return ctrl.endWithError(ctx, c)
	}
	chatSession.Bid = quote.Bid
	chatSession.Ask = quote.Ask

	var prompt string
	if chatSession.Side == model.SideBuy {
		balance, err := ctrl.traderService.GetBalance(ctx)
		if err != nil {
			return ctrl.endWithError(ctx, c)
		}
		chatSession.Balance = balance

		prompt = "This instrument is currently trading for €" + telebotConverter.FormatPrice(chatSession.Ask) +
			", your total balance is €" + telebotConverter.FormatMinorUnits(chatSession.Balance) + ". " +
			"How many shares do you wish to " + chatSession.Side + "?"
	} else {
		sharesOwned, err := ctrl.traderService.GetSharesOwned(ctx, chatSession.ISIN)
		if err != nil {
			return ctrl.endWithError(ctx, c)
		}
		chatSession.SharesOwned = sharesOwned

		prompt = "This instrument can be sold for €" + telebotConverter.FormatPrice(chatSession.Bid) +
			", you currently own " + strconv.Itoa(chatSession.SharesOwned) + " share(s). " +
			"How many shares do you wish to " + chatSession.Side + "?"
	}

	chatSession.State = model.ExpectingQuantity
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send(prompt)
}

// ProcessQuantity validates the entered share count and places the order.
// Validation failures reprompt without touching the stored quantity/total.
func (ctrl *Controller) ProcessQuantity(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	quantity, err := decimal.NewFromString(strings.TrimSpace(c.Message().Text))
	if err != nil {
		return c.Send("You've entered an invalid amount. Please try again.")
	}

	if quantity.IsZero() {
		return c.Send(
			"You have indicated you do not wish to " + chatSession.Side + " any shares, type " +
				"/cancel to abort this process or enter a new amount.",
		)
	}

	var total decimal.Decimal
	if chatSession.Side == model.SideBuy {
		total = quantity.Mul(chatSession.Ask)
	} else {
		total = quantity.Mul(chatSession.Bid)
	}

	if chatSession.Side == model.SideBuy && total.GreaterThan(decimal.New(chatSession.Balance, -4)) {
		return c.Send(
			"You do not have enough money to buy " + quantity.String() + " of " + chatSession.InstrumentName + ". " +
				"Please enter a new amount.",
		)
	}

	if chatSession.Side == model.SideSell && quantity.GreaterThan(decimal.NewFromInt(int64(chatSession.SharesOwned))) {
		return c.Send(
			"You do not have enough shares of " + chatSession.InstrumentName + ". " +
				"Please enter a new amount.",
		)
	}

	if !quantity.IsInteger() {
		return c.Send("You've entered an invalid amount. Please try again.")
	}

	placedOrder, err := ctrl.traderService.PlaceOrder(ctx, chatSession.ISIN, int(quantity.IntPart()), chatSession.Side)
	if err != nil {
		return ctrl.endWithError(ctx, c)
	}

	chatSession.Quantity = int(quantity.IntPart())
	chatSession.Total = total
	chatSession.OrderID = placedOrder.ID
	chatSession.OrderRejected = placedOrder.Rejected
	chatSession.State = model.ExpectingConfirmation
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send(
		"You've indicated that you wish to "+chatSession.Side+" "+strconv.Itoa(chatSession.Quantity)+
			" share(s) of "+chatSession.InstrumentName+" at a total of €"+telebotConverter.FormatPrice(chatSession.Total)+". "+
			"Please confirm or cancel your order to continue.",
		telebotConverter.ConfirmCancelKeyboard(),
	)
}

// ProcessConfirmation activates the order and blocks on the execution poller
// with no deadline. A cancelled order is left un-activated; the short expiry
// marker lets the brokerage discard it.
func (ctrl *Controller) ProcessConfirmation(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if c.Message().Text == "Cancel" {
		chatSession.State = model.ExpectingContinueDecision
		if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
			return c.Send(internalErrMsg)
		}
		return c.Send(
			"You've cancelled your order. Would you like to make another trade?",
			telebotConverter.YesNoKeyboard(),
		)
	}

	if err := ctrl.traderService.ActivateOrder(ctx, chatSession.OrderID); err != nil {
		return ctrl.endWithError(ctx, c)
	}

	if err := c.Send("Please wait while we process your order."); err != nil {
		slog.Error("can't send message", slog.String("err", err.Error()))
	}

	averagePrice, err := ctrl.traderService.AwaitExecution(ctx, chatSession.OrderID, 0)
	if err != nil {
		return ctrl.endWithError(ctx, c)
	}

	chatSession.AveragePrice = averagePrice
	chatSession.State = model.ExpectingContinueDecision
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send(
		"Your order was executed at €"+telebotConverter.FormatMinorUnits(chatSession.AveragePrice)+" per share. "+
			"Would you like to make another trade?",
		telebotConverter.YesNoKeyboard(),
	)
}

func (ctrl *Controller) ProcessContinueDecision(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	if c.Message().Text == "Yes" {
		chatSession := model.Session{State: model.ExpectingInstrumentType}
		if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
			return c.Send(internalErrMsg)
		}
		return c.Send("What type of instrument do you want to trade?", telebotConverter.StockETFKeyboard())
	}

	if err := ctrl.saveSession(ctx, c, model.Session{}); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send(farewellMsg, telebotConverter.RemoveKeyboard())
}

// Cancel aborts the conversation from any state.
func (ctrl *Controller) Cancel(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	if err := ctrl.saveSession(ctx, c, model.Session{}); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send(farewellMsg, telebotConverter.RemoveKeyboard())
}

func (ctrl *Controller) ShowPositions(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	positions, err := ctrl.traderService.GetPositions(ctx)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	for _, position := range positions {
		if position.Quantity == 0 {
			continue
		}
		if err := c.Send(telebotConverter.PositionDetails(position)); err != nil {
			slog.Error("can't send message", slog.String("err", err.Error()))
		}
	}

	return nil
}

func (ctrl *Controller) SendPositionsReport(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	fileBytes, fileExtension, err := ctrl.traderService.BuildPositionsReport(ctx)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(fileBytes)),
		FileName: "positions" + fileExtension,
	}

	return c.Send(doc)
}

func (ctrl *Controller) Moon(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	memeStock, err := ctrl.traderService.GetMemeStock(ctx)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send(memeStock + " to the moon 🚀")
}

func (ctrl *Controller) getSessionFromTeleCtxOrStorage(ctx context.Context, c tele.Context) (model.Session, error) {
	chatSession, ok := c.Get("session").(model.Session)
	if ok {
		return chatSession, nil
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	chatSession, err := ctrl.session.GetSession(ctx, strconv.FormatInt(c.Chat().ID, 10))
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return model.Session{}, err
		}
	}
	return chatSession, nil
}

func (ctrl *Controller) saveSession(ctx context.Context, c tele.Context, chatSession model.Session) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	err := ctrl.session.SetSession(ctx, strconv.FormatInt(c.Chat().ID, 10), chatSession)
	if err != nil {
		slog.Error("got error from session.SetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}
	return nil
}

// endWithError resets the session and reports the generic failure message.
// Internal error detail never reaches the user.
func (ctrl *Controller) endWithError(ctx context.Context, c tele.Context) error {
	_ = ctrl.session.SetSession(ctx, strconv.FormatInt(c.Chat().ID, 10), model.Session{})
	return c.Send(internalErrMsg, telebotConverter.RemoveKeyboard())
}
