package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flow-metrics/calendar"
	"flow-metrics/config"
	"flow-metrics/dataset"
	"flow-metrics/eventlog"
	"flow-metrics/metrics"
	"flow-metrics/timeline"
)

// Source selects where raw changelogs come from
type Source string

const (
	SourceFiles Source = "files"
	SourceStore Source = "redis"
)

// ParseSource accepts the -source flag value
func ParseSource(value string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(value))) {
	case "", SourceFiles:
		return SourceFiles, nil
	case SourceStore:
		return SourceStore, nil
	}
	return "", fmt.Errorf("unknown source %q (want files or redis)", value)
}

// Engine wires the calendar, status map and exclusions for repeated runs.
// It holds no per-run state.
type Engine struct {
	cfg        config.Config
	log        logrus.FieldLogger
	builder    *timeline.Builder
	calculator *metrics.Calculator
}

// Result is one analysis run
type Result struct {
	RunID    string
	Source   Source
	Report   metrics.Report
	Metrics  []metrics.CycleMetric
	Excluded map[metrics.ExclusionCategory][]string
}

func NewEngine(cfg config.Config, log logrus.FieldLogger) (*Engine, error) {
	cal := calendar.Default()
	if len(cfg.Holidays) > 0 {
		var err error
		if cal, err = calendar.New(cfg.Holidays); err != nil {
			return nil, err
		}
	}

	statuses, err := timeline.DefaultStatusMap().With(cfg.StatusMap)
	if err != nil {
		return nil, err
	}

	exclusions := metrics.DefaultExclusionConfig()
	if cfg.Exclusions != "" {
		if exclusions, err = metrics.LoadExclusionConfig(cfg.Exclusions); err != nil {
			return nil, err
		}
		log.WithField("path", cfg.Exclusions).Info("loaded exclusion config")
	}

	return &Engine{
		cfg:        cfg,
		log:        log,
		builder:    timeline.NewBuilder(statuses),
		calculator: metrics.NewCalculator(cal, metrics.NewExclusionSet(exclusions)),
	}, nil
}

func (e *Engine) sources(source Source) dataset.Sources {
	src := dataset.Sources{
		IssueFacts:      e.cfg.IssueFacts,
		PeriodLookup:    e.cfg.PeriodLookup,
		PeriodIssuesDir: e.cfg.PeriodIssuesDir,
		StoryPoints:     e.cfg.StoryPoints,
		RawExports:      e.cfg.RawExports,
		PeriodOrder:     e.cfg.PeriodOrder,
	}
	if source == SourceStore {
		src.RawExports = ""
	}
	return src
}

// Run loads the inputs, computes per-issue metrics and aggregates them.
// With SourceStore the raw changelogs are read from store instead of the
// export files; the facts file and period lookup are required either way.
func (e *Engine) Run(ctx context.Context, source Source, store eventlog.Store) (Result, error) {
	start := time.Now()

	ds, err := dataset.Load(e.sources(source))
	if err != nil {
		return Result{}, err
	}

	if source == SourceStore {
		if store == nil {
			return Result{}, fmt.Errorf("source %s needs an event log store", source)
		}
		raw, err := store.Load(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("load event log: %w", err)
		}
		ds.Raw = dataset.IndexByKey(raw)
	}

	e.log.WithFields(logrus.Fields{
		"facts":   len(ds.Facts),
		"raw":     len(ds.Raw),
		"periods": len(ds.Throughput),
		"source":  source,
	}).Info("loaded dataset")

	computed := e.calculator.ComputeAll(ds.Records(e.builder), e.log)

	report := metrics.Aggregate(computed.Metrics, ds.Lookup, metrics.AggregateOptions{
		PeriodOrder: e.cfg.PeriodOrder,
		Throughput:  ds.Throughput,
		StoryPoints: ds.PeriodPoints,
		TopN:        e.cfg.TopN,
		Excluded:    computed.Excluded,
		Now:         time.Now().UTC(),
	})

	e.log.WithFields(logrus.Fields{
		"sample_size": report.Overall.SampleSize,
		"with_cycle":  report.Overall.WithCycle,
		"excluded":    computed.ExcludedCount(),
		"duration":    time.Since(start).String(),
	}).Info("analysis complete")

	return Result{
		RunID:    uuid.NewString(),
		Source:   source,
		Report:   report,
		Metrics:  computed.Metrics,
		Excluded: computed.Excluded,
	}, nil
}
