package tgbot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/KotFed0t/lemon_trader_bot/config"
	"github.com/KotFed0t/lemon_trader_bot/data/session"
	"github.com/KotFed0t/lemon_trader_bot/internal/model"
	"github.com/KotFed0t/lemon_trader_bot/internal/transport/telegram"
	customMW "github.com/KotFed0t/lemon_trader_bot/internal/transport/telegram/middleware"
	"github.com/KotFed0t/lemon_trader_bot/utils"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	SetSession(ctx context.Context, key string, chatSession model.Session) error
}

type TGBot struct {
	bot     *tele.Bot
	ctrl    *telegram.Controller
	session Session
}

func New(cfg *config.Config, ctrl *telegram.Controller, session Session) *TGBot {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		slog.Error("error while tele.NewBot", slog.String("err", err.Error()))
		panic(err)
	}

	return &TGBot{bot: b, ctrl: ctrl, session: session}
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger())

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	// plain text goes to the handler owning the session's current state
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		ctx := utils.CreateCtxWithRqID(c)
		rqID := utils.GetRequestIDFromCtx(ctx)
		chatSession, err := b.session.GetSession(ctx, strconv.FormatInt(c.Chat().ID, 10))
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return c.Send("something went wrong...")
		}

		c.Set("session", chatSession)

		switch chatSession.State {
		case model.ExpectingInstrumentType:
			return b.ctrl.ProcessInstrumentType(c)
		case model.ExpectingSearchQuery:
			return b.ctrl.ProcessSearchQuery(c)
		case model.ExpectingInstrumentName:
			return b.ctrl.ProcessInstrumentName(c)
		case model.ExpectingSide:
			return b.ctrl.ProcessSide(c)
		case model.ExpectingQuantity:
			return b.ctrl.ProcessQuantity(c)
		case model.ExpectingConfirmation:
			return b.ctrl.ProcessConfirmation(c)
		case model.ExpectingContinueDecision:
			return b.ctrl.ProcessContinueDecision(c)
		case model.ExpectingQuickTrade:
			return b.ctrl.ProcessQuickTrade(c)
		case model.ExpectingQuickTradeConfirmation:
			return b.ctrl.ProcessQuickTradeConfirmation(c)
		default:
			return c.Send("Please send one of the commands first. Send /start to see the list.")
		}
	})

	b.bot.Handle("/start", b.ctrl.Start)
	b.bot.Handle("/trade", b.ctrl.Trade)
	b.bot.Handle("/quicktrade", b.ctrl.QuickTrade)
	b.bot.Handle("/positions", b.ctrl.ShowPositions)
	b.bot.Handle("/report", b.ctrl.SendPositionsReport)
	b.bot.Handle("/moon", b.ctrl.Moon)
	b.bot.Handle("/cancel", b.ctrl.Cancel)
}
