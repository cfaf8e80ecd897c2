// cmd/replay feeds persisted closing prices from SQLite back through the
// indicator set, printing each value as it becomes ready. Useful for
// validating indicator output against a known history without a live feed.
//
// Usage:
//
//	go run ./cmd/replay --db=data/ticks.db --exchange=NSE --symbol=SBIN --indicators=SMA:20,EMA:9,RSI:14
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"indicator-enginev1/internal/indicator"
	"indicator-enginev1/internal/model"
	sqlitestore "indicator-enginev1/internal/store/sqlite"
	"indicator-enginev1/internal/window"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	dbPath := flag.String("db", "data/ticks.db", "Path to SQLite database")
	exchange := flag.String("exchange", "NSE", "Instrument exchange")
	symbol := flag.String("symbol", "", "Instrument symbol (required)")
	indicatorCfg := flag.String("indicators", "SMA:20,EMA:9,RSI:14", "Indicator specs: TYPE:PERIOD,...")
	limit := flag.Int("limit", window.DefaultCapacity, "Number of most recent closes to replay")
	verbose := flag.Bool("v", false, "Print a row per close instead of the final summary only")
	flag.Parse()

	if *symbol == "" {
		log.Fatal("[replay] --symbol is required")
	}

	store, err := sqlitestore.Open(*dbPath)
	if err != nil {
		log.Fatalf("[replay] sqlite open failed: %v", err)
	}
	defer store.Close()

	inst := model.NewInstrument(*exchange, *symbol)
	closes, err := store.ReadCloses(context.Background(), inst, *limit)
	if err != nil {
		log.Fatalf("[replay] history read failed: %v", err)
	}
	if len(closes) == 0 {
		log.Fatalf("[replay] no closes stored for %s", inst.Key())
	}
	log.Printf("[replay] %s: replaying %d closes", inst.Key(), len(closes))

	specs, err := parseSpecs(*indicatorCfg)
	if err != nil {
		log.Fatalf("[replay] %v", err)
	}

	inds := make([]indicator.Indicator, 0, len(specs))
	for _, spec := range specs {
		ind, err := indicator.New(spec, *limit)
		if err != nil {
			log.Fatalf("[replay] %v", err)
		}
		inds = append(inds, ind)
	}

	for i, c := range closes {
		for _, ind := range inds {
			ind.Update(c)
		}
		if *verbose {
			row := fmt.Sprintf("%4d  close=%.2f", i, c)
			for _, ind := range inds {
				row += "  " + ind.Name() + "=" + formatValue(ind.Value())
			}
			fmt.Println(row)
		}
	}

	fmt.Printf("\n%s after %d closes:\n", inst.Key(), len(closes))
	for _, ind := range inds {
		fmt.Printf("  %-10s %s (ready=%v)\n", ind.Name(), formatValue(ind.Value()), ind.Ready())
	}
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "warming"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// parseSpecs parses "SMA:20,EMA:9" into indicator specs.
func parseSpecs(s string) ([]indicator.Spec, error) {
	var specs []indicator.Spec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seg := strings.SplitN(part, ":", 2)
		if len(seg) != 2 {
			return nil, fmt.Errorf("invalid indicator spec %q (want TYPE:PERIOD)", part)
		}
		period, err := strconv.Atoi(seg[1])
		if err != nil {
			return nil, fmt.Errorf("invalid period in %q: %w", part, err)
		}
		specs = append(specs, indicator.Spec{
			Type:   strings.ToUpper(strings.TrimSpace(seg[0])),
			Period: period,
		})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no indicators specified")
	}
	return specs, nil
}
