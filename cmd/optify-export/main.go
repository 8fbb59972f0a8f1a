package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"optify/internal/cli"
	applog "optify/internal/log"
	"optify/internal/report/google"
	"optify/internal/services"
)

func main() {
	fs := flag.NewFlagSet("optify-export", flag.ExitOnError)
	users := fs.String("user", "", "comma separated user ids to export")
	all := fs.Bool("all", false, "export every user that has a financial state")
	recompute := fs.Bool("recalc", false, "recompute each snapshot before exporting")
	timeout := fs.Duration("timeout", 5*time.Minute, "overall export deadline")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Export monthly financial summaries to Google Sheets.")
		fmt.Fprintln(os.Stderr, "\nUsage:\n  optify-export -user u1,u2 | -all [options]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentReport)
	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Export configuration invalid", applog.FieldError, err.Error())
		os.Exit(1)
	}
	if *users == "" && !*all {
		fs.Usage()
		os.Exit(2)
	}

	sigCtx, cancel := cli.SignalContext(logger)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(sigCtx, *timeout)
	defer cancelTimeout()

	be := cli.InitBackend(ctx, logger, cfg, false)
	defer be.Cleanup()

	writer, err := google.NewFromEnv(ctx, cfg.GoogleSpreadsheetID, cfg.ReportSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err.Error())
		os.Exit(1)
	}

	recalc := services.NewRecalcService(be.Store, nil, nil)
	exporter := services.NewReportService(be.Store, recalc, writer)

	targets := splitUsers(*users)
	if *all {
		versions, err := be.Store.StateVersions(ctx)
		if err != nil {
			logger.Error("Failed to list users", applog.FieldError, err.Error())
			os.Exit(1)
		}
		for userID := range versions {
			targets = append(targets, userID)
		}
	}
	targets = dedupe(targets)

	failed := 0
	for _, userID := range targets {
		if *recompute {
			if _, err := recalc.Recalculate(ctx, userID); err != nil {
				logger.Error("Recompute failed", applog.FieldUserID, userID, applog.FieldError, err.Error())
				failed++
				continue
			}
		}
		res, err := exporter.ExportMonthly(ctx, userID)
		if err != nil {
			logger.Error("Export failed", applog.FieldUserID, userID, applog.FieldError, err.Error())
			failed++
			continue
		}
		logger.Info("Exported monthly report",
			applog.FieldUserID, userID,
			applog.FieldVersion, res.Version,
			"months", res.Months,
			"ref", res.Ref)
	}

	logger.Info("Export finished", "users", len(targets), "failed", failed)
	if failed > 0 {
		_ = be.Cleanup()
		os.Exit(1)
	}
}

func splitUsers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	sort.Strings(ids)
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}
