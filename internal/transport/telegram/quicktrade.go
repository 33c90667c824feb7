package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/KotFed0t/lemon_trader_bot/internal/converter/telebotConverter"
	"github.com/KotFed0t/lemon_trader_bot/internal/model"
	"github.com/KotFed0t/lemon_trader_bot/internal/service"
	"github.com/KotFed0t/lemon_trader_bot/utils"
	tele "gopkg.in/telebot.v4"
)

var errQuickTradeFormat = errors.New("invalid quick trade format")

type quickTradeRequest struct {
	side           string
	quantity       int
	search         string
	instrumentType string
}

// parseQuickTrade expects exactly 4 whitespace-separated tokens:
// side, quantity, search term, instrument type. A "share..." type token is
// mapped to stock.
func parseQuickTrade(text string) (quickTradeRequest, error) {
	elements := strings.Fields(text)
	if len(elements) != 4 {
		return quickTradeRequest{}, errQuickTradeFormat
	}

	quantity, err := strconv.Atoi(elements[1])
	if err != nil {
		return quickTradeRequest{}, fmt.Errorf("parse quantity: %w", err)
	}

	instrumentType := strings.ToLower(elements[3])
	if strings.HasPrefix(instrumentType, "share") {
		instrumentType = model.TypeStock
	}

	return quickTradeRequest{
		side:           strings.ToLower(elements[0]),
		quantity:       quantity,
		search:         strings.ToLower(elements[2]),
		instrumentType: instrumentType,
	}, nil
}

// QuickTrade starts the single-message shortcut flow.
func (ctrl *Controller) QuickTrade(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession := model.Session{State: model.ExpectingQuickTrade}
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send("Please specify your quick trade in the following format: 'buy 5 apple stock'")
}

// ProcessQuickTrade parses the one-line order, places it right away and asks
// for confirmation before activation.
func (ctrl *Controller) ProcessQuickTrade(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	request, err := parseQuickTrade(c.Message().Text)
	if err != nil {
		if errors.Is(err, errQuickTradeFormat) {
			_ = ctrl.saveSession(ctx, c, model.Session{})
			return c.Send("A quick trade must be placed in the following format: 'buy 5 apple stock'")
		}
		return ctrl.endWithError(ctx, c)
	}

	instrument, err := ctrl.traderService.QuickLookup(ctx, request.search, request.instrumentType)
	if err != nil {
		return ctrl.endWithError(ctx, c)
	}

	placedOrder, err := ctrl.traderService.PlaceOrder(ctx, instrument.ISIN, request.quantity, request.side)
	if err != nil {
		return ctrl.endWithError(ctx, c)
	}

	quote, err := ctrl.traderService.GetQuote(ctx, instrument.ISIN)
	if err != nil {
		return ctrl.endWithError(ctx, c)
	}

	chatSession := model.Session{
		State:          model.ExpectingQuickTradeConfirmation,
		InstrumentType: request.instrumentType,
		SearchQuery:    request.search,
		InstrumentName: instrument.Title,
		ISIN:           instrument.ISIN,
		Side:           request.side,
		Bid:            quote.Bid,
		Ask:            quote.Ask,
		Quantity:       request.quantity,
		OrderID:        placedOrder.ID,
		OrderRejected:  placedOrder.Rejected,
	}
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	price := chatSession.Ask
	if chatSession.Side != model.SideBuy {
		price = chatSession.Bid
	}

	return c.Send(
		"You indicated that you wish to "+chatSession.Side+" "+strconv.Itoa(chatSession.Quantity)+" "+
			chatSession.InstrumentName+" "+chatSession.InstrumentType+" at €"+telebotConverter.FormatPrice(price)+
			" per share. Is that correct?",
		telebotConverter.ConfirmCancelKeyboard(),
	)
}

// ProcessQuickTradeConfirmation activates the placed order and polls with a
// deadline; a non-executed order is deleted by the poller on timeout.
func (ctrl *Controller) ProcessQuickTradeConfirmation(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	switch c.Message().Text {
	case "Confirm":
		if chatSession.OrderRejected {
			_ = ctrl.saveSession(ctx, c, model.Session{})
			return c.Send("Insufficient holdings, ending conversation", telebotConverter.RemoveKeyboard())
		}

		if err := ctrl.traderService.ActivateOrder(ctx, chatSession.OrderID); err != nil {
			return ctrl.endWithError(ctx, c)
		}

		if err := c.Send("Please wait while we process your order."); err != nil {
			slog.Error("can't send message", slog.String("err", err.Error()))
		}

		averagePrice, err := ctrl.traderService.AwaitExecution(ctx, chatSession.OrderID, ctrl.cfg.Order.QuickTradeDeadline)
		if err != nil {
			if errors.Is(err, service.ErrExecutionTimeout) {
				_ = ctrl.saveSession(ctx, c, model.Session{})
				return c.Send(
					"We're currently experiencing some delays. Your order was not executed. Please try again later.",
					telebotConverter.RemoveKeyboard(),
				)
			}
			return ctrl.endWithError(ctx, c)
		}

		if err := ctrl.saveSession(ctx, c, model.Session{}); err != nil {
			return c.Send(internalErrMsg)
		}

		return c.Send(
			"Your order was executed at €"+telebotConverter.FormatMinorUnits(averagePrice)+" per share.",
			telebotConverter.RemoveKeyboard(),
		)
	case "Cancel":
		if err := ctrl.saveSession(ctx, c, model.Session{}); err != nil {
			return c.Send(internalErrMsg)
		}
		return c.Send("You cancelled the order. Ending conversation.", telebotConverter.RemoveKeyboard())
	default:
		_ = ctrl.saveSession(ctx, c, model.Session{})
		return c.Send("There was an error, ending conversation.", telebotConverter.RemoveKeyboard())
	}
}
