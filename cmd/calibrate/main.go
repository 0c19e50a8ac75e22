// Command calibrate runs one contact-parameter calibration and writes its outputs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/export"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/metrics"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/problem"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/config"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/logger"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

type options struct {
	configPath     string
	logLevel       string
	runID          string
	progressPlot   string
	writeStates    string
	writeReference string
	dataOnly       bool

	// overrides, applied only when the flag was given
	maxIterations int
	mode          string
	seed          int64
	parallelism   int
	comparison    string
	plot          string
	progress      string
	sqlite        string
	set           map[string]bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "calibration config YAML (defaults to the synthetic foot problem)")
	flag.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides log_level")
	flag.StringVar(&o.runID, "run-id", "", "run id recorded in the sqlite database")
	flag.StringVar(&o.progressPlot, "progress-plot", "", "image of the best objective per iteration")
	flag.StringVar(&o.writeStates, "write-states", "", "write the motion to this .sto/.csv file")
	flag.StringVar(&o.writeReference, "write-reference", "", "write the reference force to this .sto/.csv file")
	flag.BoolVar(&o.dataOnly, "data-only", false, "write the problem data and exit without calibrating")
	flag.IntVar(&o.maxIterations, "max-iterations", 0, "override optimizer.max_iterations")
	flag.StringVar(&o.mode, "mode", "", "override optimizer.mode (threads or serial)")
	flag.Int64Var(&o.seed, "seed", 0, "override optimizer.seed")
	flag.IntVar(&o.parallelism, "parallelism", 0, "override optimizer.parallelism")
	flag.StringVar(&o.comparison, "comparison", "", "override output.comparison_file")
	flag.StringVar(&o.plot, "plot", "", "override output.plot_file")
	flag.StringVar(&o.progress, "progress", "", "override output.progress_file")
	flag.StringVar(&o.sqlite, "sqlite", "", "override output.sqlite_path")
	flag.Parse()

	o.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "calibrate:", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(o options) (*config.Config, error) {
	var cfg *config.Config
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	if o.set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if o.set["max-iterations"] {
		cfg.Optimizer.MaxIterations = o.maxIterations
	}
	if o.set["mode"] {
		cfg.Optimizer.Mode = o.mode
	}
	if o.set["seed"] {
		seed := o.seed
		cfg.Optimizer.Seed = &seed
	}
	if o.set["parallelism"] {
		cfg.Optimizer.Parallelism = o.parallelism
	}
	if o.set["comparison"] {
		cfg.Output.ComparisonFile = o.comparison
	}
	if o.set["plot"] {
		cfg.Output.PlotFile = o.plot
	}
	if o.set["progress"] {
		cfg.Output.ProgressFile = o.progress
	}
	if o.set["sqlite"] {
		cfg.Output.SQLitePath = o.sqlite
	}
	return cfg, nil
}

func run(ctx context.Context, o options, stdout, stderr io.Writer) (err error) {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	log := logger.NewText(cfg.LogLevel, stderr)
	logger.SetDefault(log)

	p, err := problem.Build(cfg)
	if err != nil {
		return err
	}
	log.LogAttrs(ctx, slog.LevelInfo, "calibration problem", p.LogAttrs()...)

	if o.writeStates != "" || o.writeReference != "" {
		if err := p.WriteData(o.writeStates, o.writeReference); err != nil {
			return fmt.Errorf("failed to write problem data: %w", err)
		}
		log.Info("problem data written", "states", o.writeStates, "reference", o.writeReference)
	}
	if o.dataOnly {
		return nil
	}

	runID := o.runID
	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if err := utils.ValidateRunID(runID); err != nil {
		return err
	}

	collector := metrics.NewCollector()
	progress := []calibration.ProgressFunc{collector.ObserveProgress}

	if path := cfg.Output.ProgressFile; path != "" {
		plog, openErr := export.CreateProgressLog(path)
		if openErr != nil {
			return openErr
		}
		defer func() {
			err = errors.Join(err, plog.Close())
		}()
		progress = append(progress, plog.Record)
	}

	var db *export.SQLiteStore
	record := &models.Run{ID: runID, Status: models.RunStatusRunning, StartTime: time.Now().UTC()}
	if path := cfg.Output.SQLitePath; path != "" {
		db, err = export.OpenSQLite(path)
		if err != nil {
			return err
		}
		defer db.Close()
		if data, err := config.MarshalConfigYAML(cfg); err == nil {
			record.ConfigYAML = string(data)
		}
		if err := db.SaveRun(ctx, record); err != nil {
			return err
		}
		progress = append(progress, func(rec calibration.ProgressRecord) {
			if err := db.RecordProgress(ctx, runID, rec); err != nil {
				log.Warn("failed to store progress", "iteration", rec.Iteration, "error", err)
			}
		})
	}

	driver, err := p.NewDriver(
		calibration.WithLogger(log),
		calibration.WithProgress(func(rec calibration.ProgressRecord) {
			for _, fn := range progress {
				fn(rec)
			}
		}),
	)
	if err != nil {
		return err
	}

	collector.Start()
	res, runErr := driver.Run(ctx)
	collector.Stop()
	if runErr != nil {
		record.Status = models.RunStatusFailed
		if ctx.Err() != nil {
			record.Status = models.RunStatusCancelled
		}
		record.Error = runErr.Error()
		record.EndTime = time.Now().UTC()
		saveRun(db, record, log)
		return runErr
	}

	record.Status = problem.RunStatus(res.Status)
	record.Result = problem.RunResult(res)
	record.EndTime = time.Now().UTC()
	record.Duration = record.EndTime.Sub(record.StartTime)

	var dbSink calibration.ComparisonSink
	if db != nil {
		dbSink = db.ComparisonSink(runID)
	}
	var fileSink, plotSink calibration.ComparisonSink
	if cfg.Output.ComparisonFile != "" {
		fileSink = export.NewFileSink(cfg.Output.ComparisonFile)
	}
	if cfg.Output.PlotFile != "" {
		plotSink = export.NewPlotSink(cfg.Output.PlotFile)
	}
	if sinks := export.Multi(fileSink, plotSink, dbSink); sinks.Len() > 0 {
		if err := driver.ExportComparison(ctx, res.Best, sinks); err != nil {
			return err
		}
	}
	if o.progressPlot != "" {
		if err := export.PlotProgress(o.progressPlot, res.History); err != nil {
			return err
		}
	}
	saveRun(db, record, log)

	problem.WriteSummary(stdout, res, p.Truth)
	problem.WriteAsymmetry(stdout, p.Asymmetry)
	log.Info("objective improvement", "ratio", collector.Improvement())
	return nil
}

func saveRun(db *export.SQLiteStore, run *models.Run, log *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.SaveRun(context.Background(), run); err != nil {
		log.Warn("failed to store run", "run_id", run.ID, "error", err)
	}
}
