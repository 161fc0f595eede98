package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"tv-alert-mirror/internal/records"
	"tv-alert-mirror/internal/storage"
)

// Export renders the mirrored fire logs as CSV and/or a per-day activity
// chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	logs, err := storage.LoadLogs(ctx, store)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		a.Logger.Info().Msg("no logs mirrored; nothing to export")
		return nil
	}

	exported := downsampleLogs(logs, opts.MaxPoints)
	perDay := firesPerDay(logs)
	a.Logger.Info().
		Int("total", len(logs)).
		Int("exported", len(exported)).
		Str("avg_per_day", averagePerDay(perDay).StringFixed(2)).
		Msg("exporting logs")

	if opts.CSVPath != "" {
		if err := writeLogsCSV(opts.CSVPath, exported); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeActivityPNG(opts.PNGPath, perDay); err != nil {
			return err
		}
	}

	return nil
}

func downsampleLogs(logs []records.LogRecord, max int) []records.LogRecord {
	if max <= 0 || len(logs) <= max {
		return logs
	}

	result := make([]records.LogRecord, 0, max)
	step := float64(len(logs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(logs) {
			idx = len(logs) - 1
		}
		result = append(result, logs[idx])
	}
	return result
}

type dayCount struct {
	day   time.Time
	count int
}

func firesPerDay(logs []records.LogRecord) []dayCount {
	buckets := make(map[time.Time]int)
	for _, log := range logs {
		day := time.UnixMilli(log.Timestamp).UTC().Truncate(24 * time.Hour)
		buckets[day]++
	}

	days := make([]dayCount, 0, len(buckets))
	for day, count := range buckets {
		days = append(days, dayCount{day: day, count: count})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].day.Before(days[j].day) })
	return days
}

func averagePerDay(days []dayCount) decimal.Decimal {
	if len(days) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, day := range days {
		total = total.Add(decimal.NewFromInt(int64(day.count)))
	}
	return total.Div(decimal.NewFromInt(int64(len(days))))
}

func writeLogsCSV(path string, logs []records.LogRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"fire_id", "alert_id", "fired_at", "name", "message"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, log := range logs {
		record := []string{
			strconv.FormatInt(log.ID, 10),
			strconv.FormatInt(log.AlertID, 10),
			time.UnixMilli(log.Timestamp).UTC().Format(time.RFC3339),
			log.Name,
			string(log.Message),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeActivityPNG(path string, days []dayCount) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if len(days) < 2 {
		return errors.New("need at least two days of activity to chart")
	}

	x := make([]time.Time, len(days))
	y := make([]float64, len(days))
	for i, day := range days {
		x[i] = day.day
		y[i] = float64(day.count)
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Fires per day",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Fires",
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
