// Command normalize runs one batch over the input location and exits.
//
// The exit status is 0 when every file was normalized, quarantined or
// already processed, 1 when configuration or startup failed, and 2 when at
// least one file failed for infrastructure reasons and stays in place.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/stmtnorm/internal/app"
	"github.com/JonMunkholm/stmtnorm/internal/config"
	"github.com/JonMunkholm/stmtnorm/internal/core"
	"github.com/JonMunkholm/stmtnorm/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", ".env", "optional .env file")
	jsonOut := flag.Bool("json", false, "print the batch result as JSON")
	flag.Parse()

	if err := godotenv.Overload(*envFile); err != nil {
		slog.Debug("no .env file loaded", "path", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("failed to start normalizer", "error", err)
		return 1
	}
	defer a.Close()

	runCtx, cancel := context.WithTimeout(core.ContextWithTrigger(ctx, core.TriggerCLI), cfg.Trigger.RunTimeout)
	defer cancel()

	res, err := a.Service.RunOnce(runCtx)
	if err != nil {
		slog.Error("run failed", "error", err, "hint", core.FormatUserError(err))
		return 1
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
	} else {
		printSummary(res)
	}

	if res.Count(core.StatusFailed) > 0 {
		return 2
	}
	return 0
}

func printSummary(res core.BatchResult) {
	for _, o := range res.Outcomes {
		line := fmt.Sprintf("%-18s %s", o.Status, o.FileName)
		switch o.Status {
		case core.StatusNormalized:
			line += fmt.Sprintf(" -> %s (%d records, %d rows skipped)", o.OutputPath, o.RecordCount, o.RowErrorCount)
		case core.StatusQuarantined:
			line += fmt.Sprintf(" [%s] %s", o.QuarantineReason, o.Detail)
		case core.StatusFailed:
			line += " " + o.Detail
		}
		fmt.Println(line)
	}
	fmt.Printf("run %s: %d normalized, %d quarantined, %d already processed, %d failed\n",
		res.RunID,
		res.Count(core.StatusNormalized),
		res.Count(core.StatusQuarantined),
		res.Count(core.StatusAlreadyProcessed),
		res.Count(core.StatusFailed),
	)
}
