package main

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/api"
)

// currency is the display currency. The API itself carries no currency.
const currency = money.USD

// formatMoney renders an API money string ("1234.50") as "$1,234.50".
func formatMoney(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return money.New(d.Shift(2).Round(0).IntPart(), currency).Display()
}

func marketMarkdown(stocks []api.Stock) string {
	var b strings.Builder
	b.WriteString("## Market\n\n| ID | Symbol | Price |\n|---:|---|---:|\n")
	for _, s := range stocks {
		fmt.Fprintf(&b, "| %d | %s | %s |\n", s.ID, s.Symbol, formatMoney(s.Price))
	}
	return b.String()
}

func portfolioMarkdown(pf *api.PortfolioResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Portfolio\n\n**Cash:** %s\n\n", formatMoney(pf.Balance))
	if len(pf.Positions) == 0 {
		b.WriteString("_No open positions._\n")
		return b.String()
	}
	b.WriteString("| Symbol | Qty | Avg price | Current | P/L |\n|---|---:|---:|---:|---:|\n")
	for _, p := range pf.Positions {
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s |\n",
			p.Symbol, p.Quantity, formatMoney(p.AvgPrice), formatMoney(p.CurrentPrice), formatMoney(p.ProfitLoss))
	}
	fmt.Fprintf(&b, "\n**Total P/L:** %s\n", formatMoney(pf.TotalProfitLoss))
	return b.String()
}

func tradeMarkdown(resp *api.TradeResponse) string {
	t := resp.Trade
	return fmt.Sprintf("%s: **%s %d** of stock %d at %s (trade #%d)\n\n**New balance:** %s\n",
		resp.Message, strings.ToUpper(t.Type), t.Quantity, t.StockID, formatMoney(t.Price), t.ID,
		formatMoney(resp.NewBalance))
}

func render(md string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}
