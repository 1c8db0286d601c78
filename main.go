package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"flow-metrics/analysis"
	"flow-metrics/artifacts"
	"flow-metrics/config"
	"flow-metrics/dataset"
	"flow-metrics/eventlog"
	"flow-metrics/history"
	"flow-metrics/jira"
	"flow-metrics/logger"
	"flow-metrics/metrics"
	"flow-metrics/report"
)

const usage = `Flow Metrics: cycle time analytics for Jira issue histories

Usage:
  flow-metrics <command> [flags]

Commands:
  analyze        compute metrics and write computed_metrics.json, issues.csv and dashboard.html
  ingest         upsert raw search exports into the event log (Redis, or a file with -file);
                 -list prints the batches already ingested into Redis
  fetch          pull Done issues with changelogs from Jira into a raw export file
  history        list recently persisted runs
  sample-config  write config.sample.json

Run 'flow-metrics <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(ctx, os.Args[2:])
	case "ingest":
		err = runIngest(ctx, os.Args[2:])
	case "fetch":
		err = runFetch(ctx, os.Args[2:])
	case "history":
		err = runHistory(ctx, os.Args[2:])
	case "sample-config", "--sample-config":
		err = runSampleConfig()
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		if errors.Is(err, dataset.ErrMissingInput) {
			fmt.Fprintln(os.Stderr, "\nProvide the input through config.json, the matching environment variable or a flag.")
		}
		os.Exit(1)
	}
}

// loadConfig reads the config file (or environment) and builds the logger
func loadConfig(path string) (config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, logger.New(cfg.LogLevel, cfg.LogFormat), nil
}

func override(field *string, value string) {
	if value != "" {
		*field = value
	}
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to the configuration file")
	source := fs.String("source", "files", "Raw changelog source: files or redis")
	facts := fs.String("facts", "", "Issue facts JSON (overrides config)")
	lookup := fs.String("lookup", "", "Issue key to period JSON (overrides config)")
	raw := fs.String("raw", "", "Glob of raw search exports (overrides config)")
	exclusions := fs.String("exclusions", "", "Exclusion config, JSON or YAML (overrides config)")
	outJSON := fs.String("out-json", "", "Metrics JSON output (overrides config)")
	outCSV := fs.String("out-csv", "", "Per-issue CSV output (overrides config)")
	outHTML := fs.String("out-html", "", "Dashboard HTML output (overrides config)")
	persist := fs.Bool("persist", true, "Save the run to Postgres and S3 when configured")
	quiet := fs.Bool("quiet", false, "Skip the console summary")
	_ = fs.Parse(args)

	cfg, log, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	override(&cfg.IssueFacts, *facts)
	override(&cfg.PeriodLookup, *lookup)
	override(&cfg.RawExports, *raw)
	override(&cfg.Exclusions, *exclusions)
	override(&cfg.OutputJSON, *outJSON)
	override(&cfg.OutputCSV, *outCSV)
	override(&cfg.OutputHTML, *outHTML)

	src, err := analysis.ParseSource(*source)
	if err != nil {
		return err
	}

	engine, err := analysis.NewEngine(cfg, log)
	if err != nil {
		return err
	}

	var store eventlog.Store
	if src == analysis.SourceStore {
		redisLog, err := eventlog.NewRedisLog(cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		defer redisLog.Close()
		store = redisLog
	}

	fmt.Println("📊 Calculating metrics...")
	res, err := engine.Run(ctx, src, store)
	if err != nil {
		return err
	}

	if !*quiet {
		report.PrintMetricsSummary(res.Report)
	}

	if err := writeOutputs(cfg, res.Report); err != nil {
		return err
	}

	if *persist {
		items, err := outputArtifacts(cfg)
		if err != nil {
			return err
		}
		persistRun(ctx, cfg, log, res, items)
	}

	fmt.Println("\n🎉 Analysis complete!")
	return nil
}

// writeOutputs exports the metrics JSON, the per-issue CSV and the dashboard
func writeOutputs(cfg config.Config, rep metrics.Report) error {
	if err := report.ExportToJSON(rep, cfg.OutputJSON); err != nil {
		return fmt.Errorf("write %s: %w", cfg.OutputJSON, err)
	}
	fmt.Printf("✅ Wrote %s\n", cfg.OutputJSON)

	if err := report.ExportToCSV(rep.Issues, cfg.OutputCSV); err != nil {
		return fmt.Errorf("write %s: %w", cfg.OutputCSV, err)
	}
	fmt.Printf("✅ Wrote %s\n", cfg.OutputCSV)

	if err := report.ExportToHTML(rep, cfg.Title, cfg.OutputHTML); err != nil {
		return fmt.Errorf("write %s: %w", cfg.OutputHTML, err)
	}
	fmt.Printf("✅ Wrote %s\n", cfg.OutputHTML)
	return nil
}

// outputArtifacts reads the written outputs back for publishing
func outputArtifacts(cfg config.Config) ([]artifacts.Artifact, error) {
	files := []struct {
		path, name, contentType string
	}{
		{cfg.OutputJSON, "computed_metrics.json", "application/json"},
		{cfg.OutputCSV, "issues.csv", "text/csv"},
		{cfg.OutputHTML, "dashboard.html", "text/html; charset=utf-8"},
	}

	items := make([]artifacts.Artifact, 0, len(files))
	for _, f := range files {
		body, err := os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.path, err)
		}
		items = append(items, artifacts.Artifact{Name: f.name, ContentType: f.contentType, Body: body})
	}
	return items, nil
}

// persistRun stores the run in Postgres and publishes its artifacts to S3.
// Both are optional; failures are logged and never fail the run.
func persistRun(ctx context.Context, cfg config.Config, log logrus.FieldLogger, res analysis.Result, items []artifacts.Artifact) {
	if cfg.DatabaseURL != "" {
		if err := saveRun(ctx, cfg, res); err != nil {
			log.WithError(err).Warn("run history not saved")
		} else {
			log.WithField("run_id", res.RunID).Info("run saved to history")
		}
	}

	var store artifacts.Store = artifacts.NewNoopStore()
	if cfg.S3Bucket != "" {
		s3Store, err := artifacts.NewS3Store(ctx, cfg.S3Region, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
		if err != nil {
			log.WithError(err).Warn("artifact store unavailable")
			return
		}
		store = s3Store
	}
	defer store.Close()

	keys, err := artifacts.Publish(ctx, store, cfg.S3Prefix, res.RunID, items)
	switch {
	case errors.Is(err, artifacts.ErrNotConfigured):
		log.Debug("artifact publishing not configured")
	case err != nil:
		log.WithError(err).Warn("artifact publishing failed")
	default:
		log.WithFields(logrus.Fields{"bucket": cfg.S3Bucket, "keys": keys}).Info("artifacts published")
	}
}

func saveRun(ctx context.Context, cfg config.Config, res analysis.Result) error {
	db, err := history.NewPostgres(ctx, cfg.DatabaseURL, history.DefaultSchema)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	_, err = db.InsertRun(ctx, history.RunInsert{
		ID:          res.RunID,
		GeneratedAt: res.Report.GeneratedAt,
		Source:      string(res.Source),
		Report:      res.Report,
	})
	return err
}

func runIngest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to the configuration file")
	raw := fs.String("raw", "", "Glob of raw search exports (overrides config)")
	file := fs.String("file", "", "Use a JSON file event log instead of Redis")
	list := fs.Bool("list", false, "List the ingestion batches recorded in Redis and exit")
	_ = fs.Parse(args)

	cfg, log, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	override(&cfg.RawExports, *raw)

	if *list {
		if cfg.RedisAddr == "" {
			return errors.New("no event log configured: set redis_addr")
		}
		redisLog, err := eventlog.NewRedisLog(cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		defer redisLog.Close()
		return listBatches(ctx, os.Stdout, redisLog)
	}

	issues, err := dataset.LoadRawExports(cfg.RawExports)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		return fmt.Errorf("%w: no raw exports match %s", dataset.ErrMissingInput, cfg.RawExports)
	}

	store, err := openStore(cfg, *file)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.Upsert(ctx, issues)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	log.WithFields(logrus.Fields{
		"batch_id":  res.BatchID,
		"added":     res.Added,
		"updated":   res.Updated,
		"unchanged": res.Unchanged,
	}).Info("ingested raw exports")
	fmt.Printf("✅ Ingested %d issues (added %d, updated %d, unchanged %d)\n",
		len(issues), res.Added, res.Updated, res.Unchanged)
	return nil
}

// batchLister is the part of the Redis event log that records ingestion batches
type batchLister interface {
	Batches(ctx context.Context) ([]eventlog.Batch, error)
}

func listBatches(ctx context.Context, w io.Writer, events batchLister) error {
	batches, err := events.Batches(ctx)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Fprintln(w, "No batches ingested yet.")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-25s  %6s  %s\n", "BATCH", "INGESTED", "ISSUES", "KEYS")
	for _, b := range batches {
		fmt.Fprintf(w, "%-36s  %-25s  %6d  %s\n", b.ID, b.IngestedAt, len(b.Keys), strings.Join(b.Keys, ","))
	}
	return nil
}

func openStore(cfg config.Config, file string) (eventlog.Store, error) {
	if file != "" {
		return eventlog.NewFileLog(file), nil
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("no event log configured: set redis_addr or pass -file")
	}
	return eventlog.NewRedisLog(cfg.RedisAddr, cfg.RedisPrefix)
}

func runFetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to the configuration file")
	jql := fs.String("jql", "", "JQL query (overrides config)")
	out := fs.String("out", "", "Raw export output (default raw_search_<timestamp>.json)")
	ingest := fs.Bool("ingest", false, "Also upsert the fetched issues into Redis")
	_ = fs.Parse(args)

	cfg, log, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	override(&cfg.JiraJQL, *jql)

	if cfg.JiraURL == "" || cfg.JiraJQL == "" {
		return errors.New("configuration error: set jira_url and jira_jql (or JIRA_URL and JIRA_JQL)")
	}

	fmt.Println("🔄 Fetching Jira issues...")
	client := jira.NewClient(cfg, log)
	issues, err := client.SearchIssues(ctx, cfg.JiraJQL)
	if err != nil {
		return fmt.Errorf("fetch jira issues: %w", err)
	}
	fmt.Printf("✅ Fetched %d Jira issues\n", len(issues))

	path := *out
	if path == "" {
		path = fmt.Sprintf("raw_search_%s.json", time.Now().UTC().Format("20060102T150405"))
	}
	if err := dataset.WriteRawExport(path, issues); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("✅ Wrote %s\n", path)

	if *ingest {
		store, err := openStore(cfg, "")
		if err != nil {
			return err
		}
		defer store.Close()
		res, err := store.Upsert(ctx, issues)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		fmt.Printf("✅ Ingested (added %d, updated %d, unchanged %d)\n", res.Added, res.Updated, res.Unchanged)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to the configuration file")
	limit := fs.Int("limit", 10, "Number of runs to list")
	_ = fs.Parse(args)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("configuration error: set database_url (or DATABASE_URL)")
	}

	db, err := history.NewPostgres(ctx, cfg.DatabaseURL, history.DefaultSchema)
	if err != nil {
		return fmt.Errorf("connect history database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	runs, err := db.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}
	fmt.Printf("%-36s  %-20s  %-6s  %6s  %6s  %8s  %8s\n", "RUN", "CREATED", "SOURCE", "ISSUES", "EXCL", "MEDIAN", "P85")
	for _, r := range runs {
		fmt.Printf("%-36s  %-20s  %-6s  %6d  %6d  %8s  %8s\n",
			r.ID, r.CreatedAt.UTC().Format("2006-01-02 15:04:05"), r.Source,
			r.SampleSize, r.Excluded, optional(r.CycleMedian), optional(r.CycleP85))
	}
	return nil
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func runSampleConfig() error {
	if err := config.CreateSampleConfig(); err != nil {
		return fmt.Errorf("create sample config: %w", err)
	}
	fmt.Println("✅ Sample configuration file created: config.sample.json")
	fmt.Println("\nEdit this file with your paths and credentials and rename to config.json")
	return nil
}
