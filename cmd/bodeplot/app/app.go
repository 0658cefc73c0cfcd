package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/bodeplot/internal/bench"
	"github.com/roman-kulish/bodeplot/internal/bench/hantek"
	"github.com/roman-kulish/bodeplot/internal/bench/sim"
	"github.com/roman-kulish/bodeplot/internal/bench/tone"
	"github.com/roman-kulish/bodeplot/internal/export"
	"github.com/roman-kulish/bodeplot/internal/metrics"
	"github.com/roman-kulish/bodeplot/internal/plot"
	"github.com/roman-kulish/bodeplot/internal/storage"
	"github.com/roman-kulish/bodeplot/internal/sweep"
)

// Run performs one sweep and saves the records to every configured sink. The
// records measured before a failure are saved too; the sweep error is returned
// after that.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	runID := uuid.NewString()
	logger = logger.With(slog.String("runId", runID))

	gen, dig, err := createBench(&config.Bench, logger)
	if err != nil {
		return fmt.Errorf("failed to create bench: %w", err)
	}

	var options []func(*sweep.Controller)
	options = append(options, sweep.WithLogger(logger))

	var collector *metrics.Collector
	if config.Metrics.Textfile != "" {
		collector = metrics.NewCollector(string(config.Bench.Type))
		options = append(options, sweep.WithObserver(collector.Observe))
	}

	var dumper *export.CaptureDumper
	if config.Output.DumpDir != "" {
		if dumper, err = export.NewCaptureDumper(config.Output.DumpDir, export.WithLogger(logger)); err != nil {
			return errors.Join(fmt.Errorf("failed to create capture dumper: %w", err), dig.Close())
		}
		options = append(options, sweep.WithObserver(dumper.Observe))
	}

	controller, err := sweep.NewController(gen, dig, config.Sweep, options...)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to create sweep controller: %w", err), dig.Close())
	}

	// the session and the results are saved even when the sweep is interrupted
	saveCtx := context.WithoutCancel(ctx)

	var sess *session
	if config.Storage.Database != "" {
		if sess, err = openSession(saveCtx, config, runID, controller.Config()); err != nil {
			return errors.Join(fmt.Errorf("failed to create session: %w", err), dig.Close())
		}
		defer sess.store.Close()
	}

	records, sweepErr := controller.Run(ctx)

	var saveErrs []error
	saveErrs = append(saveErrs, saveCSV(config, records, logger))
	if sess != nil {
		saveErrs = append(saveErrs, sess.save(saveCtx, records, sweepErr, logger))
	}
	saveErrs = append(saveErrs, savePlot(config, records, logger))
	if collector != nil {
		collector.SweepFinished(records, sweepErr)
		saveErrs = append(saveErrs, collector.WriteToTextfile(config.Metrics.Textfile))
	}
	if dumper != nil && dumper.Err() != nil {
		logger.Warn("some captures were not dumped", slog.String("error", dumper.Err().Error()))
	}

	if saveErr := errors.Join(saveErrs...); saveErr != nil {
		return errors.Join(sweepErr, fmt.Errorf("failed to save results: %w", saveErr))
	}
	return sweepErr
}

func createBench(config *BenchConfig, logger *slog.Logger) (bench.Generator, bench.Digitizer, error) {
	switch config.Type {
	case BenchSimulator:
		b, err := sim.New(config.Simulator)
		if err != nil {
			return nil, nil, fmt.Errorf("creating simulator: %w", err)
		}
		return b, b, nil

	case BenchHantek:
		gen, err := tone.New(config.Tone, tone.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("creating tone generator: %w", err)
		}
		dig, err := hantek.New(config.Hantek, hantek.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("creating Hantek digitizer: %w", err)
		}
		return gen, dig, nil

	default:
		return nil, nil, fmt.Errorf("unknown bench type '%s'", config.Type)
	}
}

func saveCSV(config *Config, records []sweep.Record, logger *slog.Logger) error {
	if err := export.WriteCSVFile(config.Output.Filename, records); err != nil {
		return err
	}

	logger.Info("results saved", slog.String("file", config.Output.Filename), slog.Int("records", len(records)))
	return nil
}

func savePlot(config *Config, records []sweep.Record, logger *slog.Logger) error {
	if config.Output.Plot == "" {
		return nil
	}
	if len(records) == 0 {
		logger.Warn("nothing to plot")
		return nil
	}

	renderer, err := plot.NewRenderer(plot.Config{Title: config.Output.Title})
	if err != nil {
		return fmt.Errorf("creating plot renderer: %w", err)
	}

	img, err := renderer.Render(records)
	if err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}

	if err = plot.WriteFile(config.Output.Plot, img); err != nil {
		return err
	}

	logger.Info("plot saved", slog.String("file", config.Output.Plot))
	return nil
}

type session struct {
	store *storage.SqliteStore
	id    int64
}

func openSession(ctx context.Context, config *Config, runID string, sweepConfig sweep.Config) (*session, error) {
	raw, err := yaml.Marshal(sweepConfig)
	if err != nil {
		return nil, fmt.Errorf("marshaling sweep config: %w", err)
	}

	store := storage.NewSqliteStore(config.Storage.Database)

	id, err := store.CreateSession(ctx, runID, string(config.Bench.Type), raw)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	return &session{store: store, id: id}, nil
}

func (s *session) save(ctx context.Context, records []sweep.Record, sweepErr error, logger *slog.Logger) error {
	if err := s.store.StoreRecords(ctx, s.id, records); err != nil {
		return fmt.Errorf("storing records: %w", err)
	}

	status, errMsg := storage.StatusCompleted, ""
	if sweepErr != nil {
		status, errMsg = storage.StatusAborted, sweepErr.Error()
	}
	if err := s.store.FinishSession(ctx, s.id, status, errMsg); err != nil {
		return fmt.Errorf("finishing session: %w", err)
	}

	logger.Info("session stored", slog.Int64("sessionId", s.id), slog.String("status", status.String()))
	return nil
}
