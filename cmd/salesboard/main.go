// salesboard is a terminal dashboard over the sales aggregation API. It
// keeps a local filter selection, re-queries the four views on every
// change and renders whatever has arrived so far.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/NikhilTanwar48/backend-global-sales/internal/client"
	"github.com/NikhilTanwar48/backend-global-sales/internal/config"
	"github.com/NikhilTanwar48/backend-global-sales/internal/dashboard"
	applog "github.com/NikhilTanwar48/backend-global-sales/internal/log"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent("salesboard")
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	api := client.New(cfg.APIBaseURL, nil)
	board := dashboard.New(api, logger)

	ctx := context.Background()

	if err := api.Health(ctx); err != nil {
		logger.Warn("API not reachable", "error", err, "base_url", cfg.APIBaseURL)
	}

	if err := board.Bootstrap(ctx); err != nil {
		// The dashboard stays usable; it just has nothing to show yet.
		fmt.Println("Could not load filter metadata. The dashboard is empty.")
		fmt.Println("Check the server and type 'reload' to try again.")
	} else {
		waitAndRender(ctx, board)
	}

	repl(ctx, board, api)
}

func repl(ctx context.Context, board *dashboard.Orchestrator, api *client.Client) {
	fmt.Println(`Commands: toggle <category|region|year> <value>, all <dimension>, filters, refresh, view, reload, export, quit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return

		case "toggle":
			if len(fields) < 3 {
				fmt.Println("usage: toggle <category|region|year> <value>")
				continue
			}
			dim, ok := parseDimension(fields[1])
			if !ok {
				fmt.Printf("unknown dimension %q\n", fields[1])
				continue
			}
			value := strings.Join(fields[2:], " ")
			if !board.Toggle(ctx, dim, value) {
				fmt.Printf("%q is not a known %s\n", value, dim)
				continue
			}
			waitAndRender(ctx, board)

		case "all":
			if len(fields) != 2 {
				fmt.Println("usage: all <category|region|year>")
				continue
			}
			dim, ok := parseDimension(fields[1])
			if !ok {
				fmt.Printf("unknown dimension %q\n", fields[1])
				continue
			}
			if !board.ToggleAll(ctx, dim) {
				fmt.Printf("no %s values loaded\n", dim)
				continue
			}
			waitAndRender(ctx, board)

		case "filters":
			printFilters(board)

		case "refresh":
			board.Refresh(ctx)
			waitAndRender(ctx, board)

		case "reload":
			if err := board.Bootstrap(ctx); err != nil {
				fmt.Println("metadata load failed:", err)
				continue
			}
			waitAndRender(ctx, board)

		case "view":
			render(os.Stdout, board.View())

		case "export":
			fmt.Println("full dataset CSV:", api.DownloadURL())

		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func parseDimension(s string) (dashboard.Dimension, bool) {
	switch strings.ToLower(s) {
	case "category", "categories":
		return dashboard.DimCategory, true
	case "region", "regions":
		return dashboard.DimRegion, true
	case "year", "years":
		return dashboard.DimYear, true
	}
	return "", false
}

func waitAndRender(ctx context.Context, board *dashboard.Orchestrator) {
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := board.WaitIdle(waitCtx); err != nil {
		fmt.Println("still loading; showing what has arrived so far")
	}
	render(os.Stdout, board.View())
}

func printFilters(board *dashboard.Orchestrator) {
	for _, dim := range dashboard.Dimensions {
		selected := board.Selected(dim)
		sort.Strings(selected)
		fmt.Printf("%-10s %s\n", string(dim)+":", strings.Join(selected, ", "))
	}
	fmt.Println("predicate:", board.Query().Key())
}

func render(w io.Writer, v dashboard.View) {
	if v.Loading {
		fmt.Fprintln(w, "[loading]")
	}

	if v.Summary != nil {
		fmt.Fprintf(w, "Sales %.2f | Profit %.2f | Avg order %.2f | Orders %d\n",
			v.Summary.TotalSales, v.Summary.TotalProfit, v.Summary.AvgOrderValue, v.Summary.Orders)
	} else {
		fmt.Fprintln(w, "Summary: no data yet")
	}

	if len(v.Categories) > 0 {
		fmt.Fprintln(w, "By category:")
		for _, row := range v.Categories {
			fmt.Fprintf(w, "  %-20s %12.2f  (profit %10.2f)\n", row.Category, row.Sales, row.Profit)
		}
	}

	if len(v.Regions) > 0 {
		fmt.Fprintln(w, "By region:")
		for _, row := range v.Regions {
			fmt.Fprintf(w, "  %-20s %12.2f\n", row.Region, row.Sales)
		}
	}

	if len(v.Trend) > 0 {
		years := make([]string, 0, len(v.Trend))
		for year := range v.Trend {
			years = append(years, year)
		}
		sort.Strings(years)
		fmt.Fprintln(w, "Monthly trend:")
		for _, year := range years {
			fmt.Fprintf(w, "  %s:", year)
			for _, point := range v.Trend[year] {
				fmt.Fprintf(w, " %s=%.0f", monthLabel(point.Month), point.Sales)
			}
			fmt.Fprintln(w)
		}
	}
}

// monthLabel abbreviates a month name to three characters; labels already
// that short are printed as they arrived.
func monthLabel(month string) string {
	if len(month) <= 3 {
		return month
	}
	return month[:3]
}
