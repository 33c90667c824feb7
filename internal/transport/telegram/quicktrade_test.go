package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KotFed0t/lemon_trader_bot/internal/model"
	"github.com/KotFed0t/lemon_trader_bot/internal/service"
	"github.com/shopspring/decimal"
)

func TestParseQuickTrade(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    quickTradeRequest
		wantErr error
	}{
		{
			name:  "buy stock",
			input: "buy 5 apple stock",
			want:  quickTradeRequest{side: "buy", quantity: 5, search: "apple", instrumentType: "stock"},
		},
		{
			name:  "sell etf",
			input: "Sell 2 MSCI etf",
			want:  quickTradeRequest{side: "sell", quantity: 2, search: "msci", instrumentType: "etf"},
		},
		{
			name:  "share synonym maps to stock",
			input: "buy 3 tesla shares",
			want:  quickTradeRequest{side: "buy", quantity: 3, search: "tesla", instrumentType: "stock"},
		},
		{
			name:    "three tokens",
			input:   "buy 5 apple",
			wantErr: errQuickTradeFormat,
		},
		{
			name:    "five tokens",
			input:   "buy 5 apple common stock",
			wantErr: errQuickTradeFormat,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: errQuickTradeFormat,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseQuickTrade(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestParseQuickTrade_NonNumericQuantityIsNotFormatError(t *testing.T) {
	_, err := parseQuickTrade("buy five apple stock")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, errQuickTradeFormat) {
		t.Fatal("quantity parse failure must not be reported as a format error")
	}
}

func TestProcessQuickTrade_FormatErrorPlacesNothing(t *testing.T) {
	srv := &mockTraderService{}
	store := newMemSession()
	store.m["42"] = model.Session{State: model.ExpectingQuickTrade}
	ctrl := testController(srv, store)

	c := newFakeContext("buy 5 apple")
	if err := ctrl.ProcessQuickTrade(c); err != nil {
		t.Fatalf("ProcessQuickTrade returned error: %v", err)
	}

	if len(srv.calls) != 0 {
		t.Errorf("no service calls expected, got %v", srv.calls)
	}
	if !strings.Contains(c.lastSent(), "must be placed in the following format") {
		t.Errorf("expected format usage error, got %q", c.lastSent())
	}
	if store.stored().State != model.DefaultState {
		t.Errorf("conversation must end, got state %v", store.stored().State)
	}
}

func TestProcessQuickTrade_SuccessReachesConfirmation(t *testing.T) {
	srv := &mockTraderService{
		quickRes: model.Instrument{ISIN: "US0378331005", Title: "Apple Inc."},
		placed:   model.PlacedOrder{ID: "ord_1"},
		quote: model.Quote{
			Bid: decimal.NewFromFloat(287.41),
			Ask: decimal.NewFromFloat(287.53),
		},
	}
	store := newMemSession()
	store.m["42"] = model.Session{State: model.ExpectingQuickTrade}
	ctrl := testController(srv, store)

	c := newFakeContext("buy 5 apple stock")
	if err := ctrl.ProcessQuickTrade(c); err != nil {
		t.Fatalf("ProcessQuickTrade returned error: %v", err)
	}

	if !srv.called("QuickLookup apple stock") {
		t.Errorf("unexpected lookup call, calls: %v", srv.calls)
	}
	if srv.placedQty != 5 || srv.placedSide != model.SideBuy {
		t.Errorf("unexpected placement: qty=%d side=%s", srv.placedQty, srv.placedSide)
	}

	stored := store.stored()
	if stored.State != model.ExpectingQuickTradeConfirmation {
		t.Errorf("unexpected state: %v", stored.State)
	}
	if stored.OrderID != "ord_1" || stored.ISIN != "US0378331005" {
		t.Errorf("unexpected session: %+v", stored)
	}
	// buy quotes the ask leg
	if !strings.Contains(c.lastSent(), "287.53") {
		t.Errorf("expected ask price in prompt, got %q", c.lastSent())
	}
}

func TestProcessQuickTradeConfirmation_RejectedOrderRefusesActivation(t *testing.T) {
	srv := &mockTraderService{}
	store := newMemSession()
	store.m["42"] = model.Session{
		State:         model.ExpectingQuickTradeConfirmation,
		OrderID:       "ord_1",
		OrderRejected: true,
	}
	ctrl := testController(srv, store)

	c := newFakeContext("Confirm")
	if err := ctrl.ProcessQuickTradeConfirmation(c); err != nil {
		t.Fatalf("ProcessQuickTradeConfirmation returned error: %v", err)
	}

	if srv.called("ActivateOrder") {
		t.Error("rejected order must not be activated")
	}
	if !strings.Contains(c.lastSent(), "Insufficient holdings") {
		t.Errorf("expected insufficient holdings message, got %q", c.lastSent())
	}
}

func TestProcessQuickTradeConfirmation_PollsWithDeadline(t *testing.T) {
	srv := &mockTraderService{awaitPrice: 2875300}
	store := newMemSession()
	store.m["42"] = model.Session{
		State:   model.ExpectingQuickTradeConfirmation,
		OrderID: "ord_1",
	}
	ctrl := testController(srv, store)

	c := newFakeContext("Confirm")
	if err := ctrl.ProcessQuickTradeConfirmation(c); err != nil {
		t.Fatalf("ProcessQuickTradeConfirmation returned error: %v", err)
	}

	if srv.activatedOrderID != "ord_1" {
		t.Errorf("unexpected activated order: %s", srv.activatedOrderID)
	}
	if srv.awaitDeadline != 3*time.Minute {
		t.Errorf("quick trade must poll with the configured deadline, got %s", srv.awaitDeadline)
	}
	if !strings.Contains(c.lastSent(), "executed at €287.53") {
		t.Errorf("expected executed price, got %q", c.lastSent())
	}
}

func TestProcessQuickTradeConfirmation_TimeoutReportsDelay(t *testing.T) {
	srv := &mockTraderService{awaitErr: service.ErrExecutionTimeout}
	store := newMemSession()
	store.m["42"] = model.Session{
		State:   model.ExpectingQuickTradeConfirmation,
		OrderID: "ord_1",
	}
	ctrl := testController(srv, store)

	c := newFakeContext("Confirm")
	if err := ctrl.ProcessQuickTradeConfirmation(c); err != nil {
		t.Fatalf("ProcessQuickTradeConfirmation returned error: %v", err)
	}

	if !strings.Contains(c.lastSent(), "experiencing some delays") {
		t.Errorf("expected delay message, got %q", c.lastSent())
	}
	if store.stored().State != model.DefaultState {
		t.Errorf("conversation must end after timeout, got %v", store.stored().State)
	}
}

func TestProcessQuickTradeConfirmation_Cancel(t *testing.T) {
	srv := &mockTraderService{}
	store := newMemSession()
	store.m["42"] = model.Session{
		State:   model.ExpectingQuickTradeConfirmation,
		OrderID: "ord_1",
	}
	ctrl := testController(srv, store)

	c := newFakeContext("Cancel")
	if err := ctrl.ProcessQuickTradeConfirmation(c); err != nil {
		t.Fatalf("ProcessQuickTradeConfirmation returned error: %v", err)
	}

	if srv.called("ActivateOrder") {
		t.Error("cancelled order must not be activated")
	}
	if !strings.Contains(c.lastSent(), "You cancelled the order") {
		t.Errorf("expected cancellation acknowledgment, got %q", c.lastSent())
	}
}
