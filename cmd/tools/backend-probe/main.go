// cmd/tools/backend-probe/main.go
//
// backend-probe checks a search backend deployment from the command line:
//
//	backend-probe -url https://nextrial-backend.onrender.com health
//	backend-probe stats
//	backend-probe search "recruiting trials for EGFR+ NSCLC"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"nextrial-session/internal/backend"
	"nextrial-session/internal/common/config"
	"nextrial-session/internal/common/logger"
)

func main() {
	baseURL := flag.String("url", config.DefaultBackendBaseURL, "Backend base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "Request timeout")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	client := backend.NewClient(&backend.Config{
		BaseURL: *baseURL,
		Timeout: *timeout,
	}, &probeLogger{logger.NewNoOpLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch flag.Arg(0) {
	case "health":
		health, err := client.CheckHealth(ctx)
		if err != nil {
			fail("health check", err)
		}
		printJSON(health)
		if health.IsDegraded() {
			fmt.Fprintln(os.Stderr, "backend is degraded")
			os.Exit(2)
		}

	case "stats":
		stats, err := client.Stats(ctx)
		if err != nil {
			fail("stats", err)
		}
		printJSON(stats)

	case "search":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Error: search requires a query argument.")
			os.Exit(1)
		}
		result, err := client.Search(ctx, backend.NewSearchRequest(flag.Arg(1), nil))
		if err != nil {
			fail("search", err)
		}
		printJSON(result)

	case "trial":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Error: trial requires an id argument.")
			os.Exit(1)
		}
		details, err := client.TrialDetails(ctx, flag.Arg(1))
		if err != nil {
			fail("trial details", err)
		}
		printJSON(details)

	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: backend-probe [-url URL] [-timeout D] <health|stats|search QUERY|trial ID>")
}

func fail(operation string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s failed: %v\n", operation, err)
	os.Exit(1)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("encode output", err)
	}
	fmt.Println(string(out))
}

type probeLogger struct {
	logger.Logger
}

func (l *probeLogger) With(fields map[string]interface{}) backend.Logger {
	return &probeLogger{l.Logger.With(fields)}
}
