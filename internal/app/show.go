package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"tv-alert-mirror/internal/records"
	"tv-alert-mirror/internal/storage"
)

// Show prints the mirrored alerts or logs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; nothing to show")
	}
	if closeStore != nil {
		defer closeStore()
	}

	switch opts.Collection {
	case "alerts":
		alerts, err := storage.LoadAlerts(ctx, store)
		if err != nil {
			return err
		}
		return printAlerts(alerts, opts.Limit)
	case "logs":
		logs, err := storage.LoadLogs(ctx, store)
		if err != nil {
			return err
		}
		return printLogs(logs, opts.Limit)
	default:
		return fmt.Errorf("unknown collection %q (want alerts or logs)", opts.Collection)
	}
}

func printAlerts(alerts []records.AlertRecord, limit int) error {
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts mirrored")
		return nil
	}
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tName\tTicker\tStatus\tCondition")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\n",
			alert.ID,
			sanitizeInline(alert.Name),
			alert.Ticker,
			alert.Status,
			sanitizeInline(alert.Condition),
		)
	}
	return writer.Flush()
}

func printLogs(logs []records.LogRecord, limit int) error {
	if len(logs) == 0 {
		fmt.Fprintln(os.Stdout, "no logs mirrored")
		return nil
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fire ID\tAlert ID\tTime (UTC)\tName")
	for _, log := range logs {
		fmt.Fprintf(
			writer,
			"%d\t%d\t%s\t%s\n",
			log.ID,
			log.AlertID,
			time.UnixMilli(log.Timestamp).UTC().Format(time.RFC3339),
			sanitizeInline(log.Name),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
