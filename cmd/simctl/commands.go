package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/subcommands"

	"github.com/stocksim/trading-engine/internal/client"
)

type marketCmd struct {
	server *string
}

func (*marketCmd) Name() string     { return "market" }
func (*marketCmd) Synopsis() string { return "list stocks and their current prices" }
func (*marketCmd) Usage() string {
	return `market:
  List every stock sorted by symbol.
`
}
func (*marketCmd) SetFlags(*flag.FlagSet) {}

func (c *marketCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	stocks, err := client.New(*c.server).Market(ctx)
	if err != nil {
		return fail(err)
	}
	return show(marketMarkdown(stocks))
}

type portfolioCmd struct {
	server *string
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "show cash balance and open positions" }
func (*portfolioCmd) Usage() string {
	return `portfolio:
  Show the account balance and every open position with its profit/loss.
`
}
func (*portfolioCmd) SetFlags(*flag.FlagSet) {}

func (c *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	pf, err := client.New(*c.server).Portfolio(ctx)
	if err != nil {
		return fail(err)
	}
	return show(portfolioMarkdown(pf))
}

type tradeCmd struct {
	server *string
}

func (*tradeCmd) Name() string     { return "trade" }
func (*tradeCmd) Synopsis() string { return "buy or sell shares at the current price" }
func (*tradeCmd) Usage() string {
	return `trade <buy|sell> <stock-id> <quantity>:
  Execute a market order. Failed trades are reported and never retried.
`
}
func (*tradeCmd) SetFlags(*flag.FlagSet) {}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 3 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	side := f.Arg(0)
	stockID, err := strconv.ParseInt(f.Arg(1), 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stock id %q\n", f.Arg(1))
		return subcommands.ExitUsageError
	}
	qty, err := strconv.ParseInt(f.Arg(2), 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid quantity %q\n", f.Arg(2))
		return subcommands.ExitUsageError
	}

	resp, err := client.New(*c.server).Trade(ctx, stockID, side, qty)
	if err != nil {
		return fail(err)
	}
	return show(tradeMarkdown(resp))
}

type updatePricesCmd struct {
	server *string
}

func (*updatePricesCmd) Name() string     { return "update-prices" }
func (*updatePricesCmd) Synopsis() string { return "move every stock price once" }
func (*updatePricesCmd) Usage() string {
	return `update-prices:
  Trigger one random market move and print the new prices.
`
}
func (*updatePricesCmd) SetFlags(*flag.FlagSet) {}

func (c *updatePricesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	resp, err := client.New(*c.server).UpdatePrices(ctx)
	if err != nil {
		return fail(err)
	}
	return show(resp.Message + "\n\n" + marketMarkdown(resp.Stocks))
}

type watchCmd struct {
	server    *string
	interval  time.Duration
	errWindow time.Duration
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "poll market and portfolio and redraw" }
func (*watchCmd) Usage() string {
	return `watch [-interval 5s]:
  Redraw the market and the portfolio until interrupted.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.interval, "interval", 5*time.Second, "refresh interval")
	f.DurationVar(&c.errWindow, "error-window", 5*time.Second, "how long a refresh error stays on screen")
}

func (c *watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cl := client.New(*c.server)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var (
		lastErr   error
		lastErrAt time.Time
	)
	for {
		screen, err := watchScreen(ctx, cl)
		if err != nil {
			lastErr, lastErrAt = err, time.Now()
		}
		if lastErr != nil && time.Since(lastErrAt) > c.errWindow {
			lastErr = nil
		}
		if lastErr != nil {
			screen += "\n\n> **Error:** " + lastErr.Error()
		}

		out, rerr := render(screen)
		if rerr != nil {
			return fail(rerr)
		}
		fmt.Print("\033[H\033[2J", out)

		select {
		case <-ctx.Done():
			return subcommands.ExitSuccess
		case <-ticker.C:
		}
	}
}

func watchScreen(ctx context.Context, cl *client.Client) (string, error) {
	stocks, err := cl.Market(ctx)
	if err != nil {
		return "", err
	}
	pf, err := cl.Portfolio(ctx)
	if err != nil {
		return marketMarkdown(stocks), err
	}
	return marketMarkdown(stocks) + "\n" + portfolioMarkdown(pf) +
		fmt.Sprintf("\n_Updated %s_\n", time.Now().Format(time.TimeOnly)), nil
}

func show(md string) subcommands.ExitStatus {
	out, err := render(md)
	if err != nil {
		return fail(err)
	}
	fmt.Print(out)
	return subcommands.ExitSuccess
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "error:", err)
	return subcommands.ExitFailure
}
