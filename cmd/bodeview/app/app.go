package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/roman-kulish/bodeplot/internal/export"
	"github.com/roman-kulish/bodeplot/internal/plot"
	"github.com/roman-kulish/bodeplot/internal/storage"
	"github.com/roman-kulish/bodeplot/internal/sweep"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if config.CSVPath != "" {
		records, err := export.ReadCSVFile(config.CSVPath)
		if err != nil {
			return err
		}
		return render(filterRecords(records, config), config, logger)
	}

	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	if config.List {
		return listSessions(ctx, store, logger)
	}

	records, err := readRecords(ctx, store, config, logger)
	if err != nil {
		return err
	}

	return render(records, config, logger)
}

func listSessions(ctx context.Context, store storage.Store, logger *slog.Logger) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}

	for _, s := range sessions {
		attrs := []any{
			slog.Int64("id", s.ID),
			slog.String("runId", s.RunID),
			slog.String("bench", s.Bench),
			slog.String("status", s.Status.String()),
			slog.String("start", s.StartTime.Local().Format(time.DateTime)),
		}
		if s.Error != nil {
			attrs = append(attrs, slog.String("error", *s.Error))
		}
		logger.Info("session", attrs...)
	}
	return nil
}

func readRecords(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) ([]sweep.Record, error) {
	var sess *storage.Session
	var err error
	if config.RunID != "" {
		sess, err = store.SessionByRunID(ctx, config.RunID)
	} else {
		sess, err = store.Session(ctx, config.SessionID)
	}
	if err != nil {
		return nil, err
	}

	var opts []storage.RecordsOption
	if config.MinFrequency != nil || config.MaxFrequency != nil {
		lo, hi := frequencyRange(config)
		opts = append(opts, storage.WithFrequencyRange(lo, hi))
	}

	records, err := store.Records(ctx, sess.ID, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("session loaded",
		slog.Int64("id", sess.ID),
		slog.String("runId", sess.RunID),
		slog.String("status", sess.Status.String()),
		slog.Int("records", len(records)),
	)

	if sess.Status != storage.StatusCompleted {
		logger.Warn("session did not complete, plotting partial results")
	}

	return records, nil
}

func frequencyRange(config *Config) (float64, float64) {
	lo, hi := 0.0, math.MaxFloat64
	if config.MinFrequency != nil {
		lo = *config.MinFrequency
	}
	if config.MaxFrequency != nil {
		hi = *config.MaxFrequency
	}
	return lo, hi
}

func filterRecords(records []sweep.Record, config *Config) []sweep.Record {
	if config.MinFrequency == nil && config.MaxFrequency == nil {
		return records
	}

	lo, hi := frequencyRange(config)

	var out []sweep.Record
	for _, rec := range records {
		if rec.Frequency >= lo && rec.Frequency <= hi {
			out = append(out, rec)
		}
	}
	return out
}

func render(records []sweep.Record, config *Config, logger *slog.Logger) error {
	renderer, err := plot.NewRenderer(plot.Config{
		Width:  config.Width,
		Height: config.Height,
		Title:  config.Title,
	})
	if err != nil {
		return fmt.Errorf("creating plot renderer: %w", err)
	}

	logger.Info("rendering plot",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.Int("records", len(records)),
		))

	img, err := renderer.Render(records)
	if err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}

	return plot.WriteFile(config.OutputFile, img)
}
