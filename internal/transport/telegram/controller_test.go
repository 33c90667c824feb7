package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/KotFed0t/lemon_trader_bot/config"
	"github.com/KotFed0t/lemon_trader_bot/data/session"
	"github.com/KotFed0t/lemon_trader_bot/internal/model"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

// fakeContext implements the handful of tele.Context methods the handlers
// touch; everything else panics via the embedded nil interface.
type fakeContext struct {
	tele.Context
	text string
	sent []string
	kv   map[string]any
}

func newFakeContext(text string) *fakeContext {
	return &fakeContext{text: text, kv: map[string]any{}}
}

func (f *fakeContext) Message() *tele.Message { return &tele.Message{Text: f.text} }

func (f *fakeContext) Chat() *tele.Chat { return &tele.Chat{ID: 42} }

func (f *fakeContext) Sender() *tele.User { return &tele.User{FirstName: "Test"} }

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	if s, ok := what.(string); ok {
		f.sent = append(f.sent, s)
	}
	return nil
}

func (f *fakeContext) Get(key string) any { return f.kv[key] }

func (f *fakeContext) Set(key string, val any) { f.kv[key] = val }

func (f *fakeContext) lastSent() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type memSession struct {
	m map[string]model.Session
}

func newMemSession() *memSession {
	return &memSession{m: map[string]model.Session{}}
}

func (s *memSession) GetSession(_ context.Context, key string) (model.Session, error) {
	chatSession, ok := s.m[key]
	if !ok {
		return model.Session{}, session.ErrNotFound
	}
	return chatSession, nil
}

func (s *memSession) SetSession(_ context.Context, key string, chatSession model.Session) error {
	s.m[key] = chatSession
	return nil
}

func (s *memSession) stored() model.Session { return s.m["42"] }

type mockTraderService struct {
	calls []string

	searchRes   map[string]string
	quickRes    model.Instrument
	quote       model.Quote
	balance     int64
	sharesOwned int
	positions   []model.Position

	placed     model.PlacedOrder
	placedISIN string
	placedQty  int
	placedSide string

	activatedOrderID string

	awaitPrice    int64
	awaitErr      error
	awaitOrderID  string
	awaitDeadline time.Duration

	venue model.VenueStatus
	meme  string
}

func (m *mockTraderService) SearchInstruments(_ context.Context, _, _ string) (map[string]string, error) {
	m.calls = append(m.calls, "SearchInstruments")
	return m.searchRes, nil
}

func (m *mockTraderService) QuickLookup(_ context.Context, search, instrumentType string) (model.Instrument, error) {
	m.calls = append(m.calls, "QuickLookup "+search+" "+instrumentType)
	return m.quickRes, nil
}

func (m *mockTraderService) GetQuote(_ context.Context, _ string) (model.Quote, error) {
	m.calls = append(m.calls, "GetQuote")
	return m.quote, nil
}

func (m *mockTraderService) GetBalance(_ context.Context) (int64, error) {
	m.calls = append(m.calls, "GetBalance")
	return m.balance, nil
}

func (m *mockTraderService) GetSharesOwned(_ context.Context, _ string) (int, error) {
	m.calls = append(m.calls, "GetSharesOwned")
	return m.sharesOwned, nil
}

func (m *mockTraderService) GetPositions(_ context.Context) ([]model.Position, error) {
	m.calls = append(m.calls, "GetPositions")
	return m.positions, nil
}

func (m *mockTraderService) PlaceOrder(_ context.Context, isin string, quantity int, side string) (model.PlacedOrder, error) {
	m.calls = append(m.calls, "PlaceOrder")
	m.placedISIN = isin
	m.placedQty = quantity
	m.placedSide = side
	return m.placed, nil
}

func (m *mockTraderService) ActivateOrder(_ context.Context, orderID string) error {
	m.calls = append(m.calls, "ActivateOrder")
	m.activatedOrderID = orderID
	return nil
}

func (m *mockTraderService) AwaitExecution(_ context.Context, orderID string, deadline time.Duration) (int64, error) {
	m.calls = append(m.calls, "AwaitExecution")
	m.awaitOrderID = orderID
	m.awaitDeadline = deadline
	return m.awaitPrice, m.awaitErr
}

func (m *mockTraderService) IsVenueOpen(_ context.Context) (model.VenueStatus, error) {
	m.calls = append(m.calls, "IsVenueOpen")
	return m.venue, nil
}

func (m *mockTraderService) GetMemeStock(_ context.Context) (string, error) {
	m.calls = append(m.calls, "GetMemeStock")
	return m.meme, nil
}

func (m *mockTraderService) BuildPositionsReport(_ context.Context) ([]byte, string, error) {
	m.calls = append(m.calls, "BuildPositionsReport")
	return []byte("xlsx"), ".xlsx", nil
}

func (m *mockTraderService) called(name string) bool {
	for _, call := range m.calls {
		if strings.HasPrefix(call, name) {
			return true
		}
	}
	return false
}

func testController(srv *mockTraderService, store *memSession) *Controller {
	cfg := &config.Config{
		Order: config.Order{QuickTradeDeadline: 3 * time.Minute},
	}
	return NewController(cfg, srv, store)
}

func buySession() model.Session {
	return model.Session{
		State:          model.ExpectingQuantity,
		InstrumentType: model.TypeStock,
		InstrumentName: "Apple Inc.",
		ISIN:           "US0378331005",
		Side:           model.SideBuy,
		Bid:            decimal.NewFromFloat(287.41),
		Ask:            decimal.NewFromFloat(287.53),
		Balance:        100000000, // €10,000.00 in minor units
	}
}

func TestProcessQuantity_BuyWithinBalanceReachesConfirmation(t *testing.T) {
	srv := &mockTraderService{placed: model.PlacedOrder{ID: "ord_1"}}
	store := newMemSession()
	store.m["42"] = buySession()
	ctrl := testController(srv, store)

	c := newFakeContext("5")
	if err := ctrl.ProcessQuantity(c); err != nil {
		t.Fatalf("ProcessQuantity returned error: %v", err)
	}

	if !srv.called("PlaceOrder") {
		t.Fatal("expected PlaceOrder to be called")
	}
	if srv.placedQty != 5 || srv.placedSide != model.SideBuy || srv.placedISIN != "US0378331005" {
		t.Errorf("unexpected placement params: qty=%d side=%s isin=%s", srv.placedQty, srv.placedSide, srv.placedISIN)
	}

	stored := store.stored()
	if stored.State != model.ExpectingConfirmation {
		t.Errorf("unexpected state: %v", stored.State)
	}
	if stored.Quantity != 5 {
		t.Errorf("unexpected quantity: %d", stored.Quantity)
	}
	wantTotal := decimal.NewFromFloat(287.53).Mul(decimal.NewFromInt(5))
	if !stored.Total.Equal(wantTotal) {
		t.Errorf("unexpected total: got %s want %s", stored.Total, wantTotal)
	}
	if stored.OrderID != "ord_1" {
		t.Errorf("unexpected order id: %s", stored.OrderID)
	}
}

func TestProcessQuantity_BuyOverBalanceReprompts(t *testing.T) {
	srv := &mockTraderService{}
	store := newMemSession()
	chatSession := buySession()
	chatSession.Balance = 10000 // €1.00
	store.m["42"] = chatSession
	ctrl := testController(srv, store)

	c := newFakeContext("5")
	if err := ctrl.ProcessQuantity(c); err != nil {
		t.Fatalf("ProcessQuantity returned error: %v", err)
	}

	if srv.called("PlaceOrder") {
		t.Fatal("order must not be placed when balance is insufficient")
	}
	if !strings.Contains(c.lastSent(), "do not have enough money") {
		t.Errorf("expected affordability reprompt, got %q", c.lastSent())
	}

	stored := store.stored()
	if stored.State != model.ExpectingQuantity {
		t.Errorf("state must stay at quantity collection, got %v", stored.State)
	}
	if stored.Quantity != 0 || !stored.Total.IsZero() {
		t.Errorf("quantity/total must stay unset after rejection: qty=%d total=%s", stored.Quantity, stored.Total)
	}
}

func TestProcessQuantity_SellOverHoldingsReprompts(t *testing.T) {
	srv := &mockTraderService{}
	store := newMemSession()
	chatSession := buySession()
	chatSession.Side = model.SideSell
	chatSession.SharesOwned = 2
	store.m["42"] = chatSession
	ctrl := testController(srv, store)

	c := newFakeContext("5")
	if err := ctrl.ProcessQuantity(c); err != nil {
		t.Fatalf("ProcessQuantity returned error: %v", err)
	}

	if srv.called("PlaceOrder") {
		t.Fatal("order must not be placed when holdings are insufficient")
	}
	if !strings.Contains(c.lastSent(), "do not have enough shares") {
		t.Errorf("expected holdings reprompt, got %q", c.lastSent())
	}
}

func TestProcessQuantity_SellWithinHoldingsReachesConfirmation(t *testing.T) {
	srv := &mockTraderService{placed: model.PlacedOrder{ID: "ord_2"}}
	store := newMemSession()
	chatSession := buySession()
	chatSession.Side = model.SideSell
	chatSession.SharesOwned = 10
	store.m["42"] = chatSession
	ctrl := testController(srv, store)

	c := newFakeContext("10")
	if err := ctrl.ProcessQuantity(c); err != nil {
		t.Fatalf("ProcessQuantity returned error: %v", err)
	}

	stored := store.stored()
	if stored.State != model.ExpectingConfirmation {
		t.Errorf("unexpected state: %v", stored.State)
	}
	wantTotal := decimal.NewFromFloat(287.41).Mul(decimal.NewFromInt(10))
	if !stored.Total.Equal(wantTotal) {
		t.Errorf("sell total must use the bid leg: got %s want %s", stored.Total, wantTotal)
	}
}

func TestProcessQuantity_ZeroAndNonIntegerReprompt(t *testing.T) {
	for _, input := range []string{"0", "2.5", "abc"} {
		srv := &mockTraderService{}
		store := newMemSession()
		store.m["42"] = buySession()
		ctrl := testController(srv, store)

		c := newFakeContext(input)
		if err := ctrl.ProcessQuantity(c); err != nil {
			t.Fatalf("ProcessQuantity(%q) returned error: %v", input, err)
		}
		if srv.called("PlaceOrder") {
			t.Errorf("input %q must not place an order", input)
		}
		if store.stored().State != model.ExpectingQuantity {
			t.Errorf("input %q must stay at quantity collection", input)
		}
	}
}

func TestProcessInstrumentName_OtherReturnsToSearch(t *testing.T) {
	srv := &mockTraderService{}
	store := newMemSession()
	store.m["42"] = model.Session{
		State:          model.ExpectingInstrumentName,
		InstrumentType: model.TypeETF,
		SearchQuery:    "msci world",
		Candidates:     map[string]string{"iShares Core MSCI World": "IE00B4L5Y983"},
	}
	ctrl := testController(srv, store)

	c := newFakeContext("Other")
	if err := ctrl.ProcessInstrumentName(c); err != nil {
		t.Fatalf("ProcessInstrumentName returned error: %v", err)
	}

	stored := store.stored()
	if stored.State != model.ExpectingSearchQuery {
		t.Errorf("expected return to search query, got %v", stored.State)
	}
	if stored.InstrumentType != model.TypeETF {
		t.Errorf("instrument type must survive Other, got %q", stored.InstrumentType)
	}
	if len(srv.calls) != 0 {
		t.Errorf("no service calls expected, got %v", srv.calls)
	}
}

func TestProcessInstrumentName_SelectionStoresISIN(t *testing.T) {
	srv := &mockTraderService{}
	store := newMemSession()
	store.m["42"] = model.Session{
		State:      model.ExpectingInstrumentName,
		Candidates: map[string]string{"Apple Inc.": "US0378331005"},
	}
	ctrl := testController(srv, store)

	c := newFakeContext("Apple Inc.")
	if err := ctrl.ProcessInstrumentName(c); err != nil {
		t.Fatalf("ProcessInstrumentName returned error: %v", err)
	}

	stored := store.stored()
	if stored.ISIN != "US0378331005" || stored.InstrumentName != "Apple Inc." {
		t.Errorf("unexpected selection: %+v", stored)
	}
	if stored.State != model.ExpectingSide {
		t.Errorf("unexpected state: %v", stored.State)
	}
}

func TestProcessConfirmation_ActivatesAndPollsWithoutDeadline(t *testing.T) {
	srv := &mockTraderService{awaitPrice: 2875300}
	store := newMemSession()
	chatSession := buySession()
	chatSession.State = model.ExpectingConfirmation
	chatSession.OrderID = "ord_1"
	store.m["42"] = chatSession
	ctrl := testController(srv, store)

	c := newFakeContext("Confirm")
	if err := ctrl.ProcessConfirmation(c); err != nil {
		t.Fatalf("ProcessConfirmation returned error: %v", err)
	}

	if srv.activatedOrderID != "ord_1" {
		t.Errorf("unexpected activated order: %s", srv.activatedOrderID)
	}
	if srv.awaitDeadline != 0 {
		t.Errorf("guided flow must poll without a deadline, got %s", srv.awaitDeadline)
	}
	if store.stored().AveragePrice != 2875300 {
		t.Errorf("unexpected average price: %d", store.stored().AveragePrice)
	}
	if !strings.Contains(c.lastSent(), "287.53") {
		t.Errorf("expected executed price in reply, got %q", c.lastSent())
	}
}

func TestProcessConfirmation_CancelLeavesOrderUntouched(t *testing.T) {
	srv := &mockTraderService{}
	store := newMemSession()
	chatSession := buySession()
	chatSession.State = model.ExpectingConfirmation
	chatSession.OrderID = "ord_1"
	store.m["42"] = chatSession
	ctrl := testController(srv, store)

	c := newFakeContext("Cancel")
	if err := ctrl.ProcessConfirmation(c); err != nil {
		t.Fatalf("ProcessConfirmation returned error: %v", err)
	}

	if srv.called("ActivateOrder") || srv.called("AwaitExecution") {
		t.Errorf("cancelled order must not be activated, calls: %v", srv.calls)
	}
	if store.stored().State != model.ExpectingContinueDecision {
		t.Errorf("unexpected state: %v", store.stored().State)
	}
}

func TestProcessContinueDecision_YesFullyResetsSession(t *testing.T) {
	srv := &mockTraderService{}
	store := newMemSession()
	chatSession := buySession()
	chatSession.State = model.ExpectingContinueDecision
	chatSession.OrderID = "ord_1"
	chatSession.Quantity = 5
	store.m["42"] = chatSession
	ctrl := testController(srv, store)

	c := newFakeContext("Yes")
	if err := ctrl.ProcessContinueDecision(c); err != nil {
		t.Fatalf("ProcessContinueDecision returned error: %v", err)
	}

	stored := store.stored()
	if stored.State != model.ExpectingInstrumentType {
		t.Errorf("unexpected state: %v", stored.State)
	}
	if stored.ISIN != "" || stored.Quantity != 0 || stored.OrderID != "" {
		t.Errorf("session must be reset on continue, got %+v", stored)
	}
}

func TestProcessContinueDecision_NoEndsConversation(t *testing.T) {
	srv := &mockTraderService{}
	store := newMemSession()
	store.m["42"] = model.Session{State: model.ExpectingContinueDecision}
	ctrl := testController(srv, store)

	c := newFakeContext("No")
	if err := ctrl.ProcessContinueDecision(c); err != nil {
		t.Fatalf("ProcessContinueDecision returned error: %v", err)
	}

	if store.stored().State != model.DefaultState {
		t.Errorf("unexpected state: %v", store.stored().State)
	}
	if !strings.Contains(c.lastSent(), "Bye") {
		t.Errorf("expected farewell, got %q", c.lastSent())
	}
}
