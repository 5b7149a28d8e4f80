// Kestrel - UPI fraud screening that blocks while you sleep.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Benchmark tool for replaying labelled transactions against a running
// Kestrel server.
//
// Usage:
//
//	kestrel-seed generate -n 5000 -o txns.csv
//	kestrel-bench --csv txns.csv --url http://localhost:8080
//
// Each row is posted to /api/check_fraud and the verdict is compared
// with the is_fraud label. The rate cap on the server must be disabled
// (--rate-limit 0) or the replay will mostly see 429s.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/seed"
)

var opts struct {
	CSV     string `long:"csv" description:"Labelled transaction CSV" required:"yes"`
	URL     string `long:"url" description:"Kestrel base URL" default:"http://localhost:8080"`
	Limit   int    `long:"limit" description:"Maximum transactions to replay (0 = all)" default:"10000"`
	Workers int    `long:"workers" description:"Number of concurrent workers" default:"10"`
	Verbose bool   `short:"v" long:"verbose" description:"Print each verdict"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	TotalProcessed int64
	TotalErrors    int64
	RateLimited    int64

	ProcessingTimeMs int64
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	fmt.Println("KESTREL BENCHMARK")
	fmt.Printf("\nCSV File:    %s\n", opts.CSV)
	fmt.Printf("Kestrel URL: %s\n", opts.URL)
	fmt.Printf("Workers:     %d\n", opts.Workers)
	fmt.Printf("Limit:       %d\n", opts.Limit)
	fmt.Println()

	if err := checkHealth(opts.URL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", opts.URL, err)
		os.Exit(1)
	}

	f, err := os.Open(opts.CSV)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	recs, err := seed.ReadRecords(f, time.Now().UTC())
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}

	fraud := 0
	for _, r := range recs {
		if r.IsFraud {
			fraud++
		}
	}
	fmt.Printf("Loaded %d transactions, %d labelled fraud\n", len(recs), fraud)

	start := time.Now()
	m := runBenchmark(recs, opts.URL, opts.Workers, opts.Verbose)
	printResults(m, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func runBenchmark(recs []seed.Record, baseURL string, numWorkers int, verbose bool) *Metrics {
	m := &Metrics{}
	work := make(chan seed.Record, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for rec := range work {
				start := time.Now()
				res, status, err := screen(client, baseURL, rec)
				atomic.AddInt64(&m.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&m.TotalProcessed, 1)

				if status == http.StatusTooManyRequests {
					atomic.AddInt64(&m.RateLimited, 1)
					continue
				}
				if err != nil {
					atomic.AddInt64(&m.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", rec.ID, err)
					}
					continue
				}

				switch {
				case res.IsFraud && rec.IsFraud:
					atomic.AddInt64(&m.TruePositives, 1)
				case res.IsFraud:
					atomic.AddInt64(&m.FalsePositives, 1)
				case rec.IsFraud:
					atomic.AddInt64(&m.FalseNegatives, 1)
				default:
					atomic.AddInt64(&m.TrueNegatives, 1)
				}

				if verbose {
					fmt.Printf("%-36s | %12s | label=%-5v | kestrel=%-5v | %v\n",
						rec.ID, rec.Amount.StringFixed(2), rec.IsFraud, res.IsFraud, res.Reasons)
				}
			}
		}()
	}

	for _, rec := range recs {
		work <- rec
	}
	close(work)
	wg.Wait()

	return m
}

func screen(client *http.Client, baseURL string, rec seed.Record) (*domain.ScreeningResult, int, error) {
	body, err := json.Marshal(domain.ScreeningRequest{
		Sender:    rec.Sender,
		Receiver:  rec.Receiver,
		Amount:    rec.Amount,
		Device:    rec.Device,
		Location:  rec.Location,
		Timestamp: domain.FormatTimestamp(rec.Timestamp),
	})
	if err != nil {
		return nil, 0, err
	}

	resp, err := client.Post(baseURL+"/api/check_fraud", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	var res domain.ScreeningResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, resp.StatusCode, err
	}
	return &res, resp.StatusCode, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nRESULTS")
	fmt.Printf("   Processed:     %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:        %d\n", m.TotalErrors)
	fmt.Printf("   Rate limited:  %d\n", m.RateLimited)

	fmt.Println("\nCONFUSION MATRIX")
	fmt.Println("                   fraud    legit")
	fmt.Printf("   label fraud  %8d %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("   label legit  %8d %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	accuracy := ratio(m.TruePositives+m.TrueNegatives,
		m.TruePositives+m.TrueNegatives+m.FalsePositives+m.FalseNegatives)

	fmt.Println("\nDETECTION")
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Println("\nPERFORMANCE")
	fmt.Printf("   Duration:     %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Avg latency:  %.2f ms\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
		fmt.Printf("   Throughput:   %.2f tx/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
