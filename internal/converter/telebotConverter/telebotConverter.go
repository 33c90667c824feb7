package telebotConverter

import (
	"fmt"
	"strings"

	"github.com/KotFed0t/lemon_trader_bot/internal/model"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

func StockETFKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{OneTimeKeyboard: true, ResizeKeyboard: true}
	markup.Reply(markup.Row(markup.Text("Stock"), markup.Text("ETF")))
	return markup
}

func BuySellKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{OneTimeKeyboard: true, ResizeKeyboard: true}
	markup.Reply(markup.Row(markup.Text("Buy"), markup.Text("Sell")))
	return markup
}

func ConfirmCancelKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{OneTimeKeyboard: true, ResizeKeyboard: true}
	markup.Reply(markup.Row(markup.Text("Confirm"), markup.Text("Cancel")))
	return markup
}

func YesNoKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{OneTimeKeyboard: true, ResizeKeyboard: true}
	markup.Reply(markup.Row(markup.Text("Yes"), markup.Text("No")))
	return markup
}

// InstrumentsKeyboard lists candidate instrument names plus the synthetic
// "Other" option for refining the search.
func InstrumentsKeyboard(names []string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{OneTimeKeyboard: true, ResizeKeyboard: true}

	rows := make([]tele.Row, 0, len(names)+1)
	for _, name := range names {
		rows = append(rows, markup.Row(markup.Text(name)))
	}
	rows = append(rows, markup.Row(markup.Text("Other")))

	markup.Reply(rows...)
	return markup
}

func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// FormatMinorUnits renders a price held in minor currency units
// (hundredths of cents) with two decimals.
func FormatMinorUnits(v int64) string {
	return decimal.New(v, -4).StringFixed(2)
}

func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}

func PositionDetails(position model.Position) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Name: %s\n", position.Title))
	sb.WriteString(fmt.Sprintf("Quantity: %d\n", position.Quantity))
	sb.WriteString(fmt.Sprintf("Average Price: €%s", FormatMinorUnits(position.BuyPriceAvg)))
	return sb.String()
}
