package main

import (
	"strings"
	"testing"

	"github.com/stocksim/trading-engine/internal/api"
)

func TestFormatMoney(t *testing.T) {
	tests := map[string]string{
		"1234.50": "$1,234.50",
		"0.00":    "$0.00",
		"-60.00":  "-$60.00",
		"oops":    "oops",
	}
	for in, want := range tests {
		if got := formatMoney(in); got != want {
			t.Errorf("formatMoney(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPortfolioMarkdown(t *testing.T) {
	md := portfolioMarkdown(&api.PortfolioResponse{
		Balance: "9140.00",
		Positions: []api.Position{
			{Symbol: "AAPL", Quantity: 6, AvgPrice: "150.00", CurrentPrice: "160.00", ProfitLoss: "60.00"},
		},
		TotalProfitLoss: "60.00",
	})
	for _, want := range []string{"$9,140.00", "| AAPL | 6 | $150.00 | $160.00 | $60.00 |", "**Total P/L:** $60.00"} {
		if !strings.Contains(md, want) {
			t.Errorf("missing %q in:\n%s", want, md)
		}
	}

	empty := portfolioMarkdown(&api.PortfolioResponse{Balance: "10000.00", TotalProfitLoss: "0.00"})
	if !strings.Contains(empty, "No open positions") {
		t.Errorf("expected empty marker, got:\n%s", empty)
	}
}

func TestMarketMarkdown(t *testing.T) {
	md := marketMarkdown([]api.Stock{{ID: 1, Symbol: "AAPL", Price: "150.00"}})
	if !strings.Contains(md, "| 1 | AAPL | $150.00 |") {
		t.Errorf("unexpected markdown:\n%s", md)
	}
}
