package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cantalupo555/statsheet-downloader/internal/batch"
	"github.com/cantalupo555/statsheet-downloader/internal/browser"
	"github.com/cantalupo555/statsheet-downloader/internal/catalog"
	"github.com/cantalupo555/statsheet-downloader/internal/config"
	"github.com/cantalupo555/statsheet-downloader/internal/processor"
	"github.com/cantalupo555/statsheet-downloader/internal/report"
)

// appVersion is set at build time via -ldflags="-X main.appVersion=x.x.x"
var appVersion = "dev"

const appName = "statsheet-downloader"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// flags mirrors the settings that may be given on the command line. Only
// flags set explicitly override the config file.
type flags struct {
	configPath  string
	input       string
	sheet       string
	downloadDir string
	summary     string
	catalog     string
	execPath    string
	profile     string
	logDir      string
	headless    bool
	verbose     bool
	delay       time.Duration
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          appName,
		Short:        "Download statistical spreadsheets listed in a batch file",
		Long:         "Opens every link of the batch file in a browser, picks the table row matching its keyword, downloads the spreadsheet and renames it to a hash name recorded in a mapping summary.",
		Version:      appVersion,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			if err := cfg.ExpandPaths(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", config.DefaultFile, "Config file (JSON5); <name>.local.<ext> overrides it")
	fl.StringVarP(&f.input, "input", "i", "", "Batch file (.xlsx or .csv) with link, keyword and note columns")
	fl.StringVar(&f.sheet, "sheet", "", "Worksheet of the batch file (default: first sheet)")
	fl.StringVarP(&f.downloadDir, "download", "d", "", "Directory to save downloads")
	fl.StringVar(&f.summary, "summary", "", "Mapping summary file name inside the download directory (.xlsx or .csv)")
	fl.StringVar(&f.catalog, "catalog", "", "Sqlite database to append the mapping of this run to")
	fl.StringVar(&f.execPath, "exec", "", "Browser executable (auto-detect if empty)")
	fl.StringVar(&f.profile, "profile", "", "Path to browser profile")
	fl.StringVar(&f.logDir, "log-dir", "", "Also write logs to a timestamped file in this directory")
	fl.BoolVar(&f.headless, "headless", false, "Run the browser without a window")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Log debug output")
	fl.DurationVar(&f.delay, "delay", processor.DefaultDelay, "Pause between records")

	cmd.AddCommand(newHistoryCmd())
	return cmd
}

func (f flags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("input") {
		cfg.Input = f.input
	}
	if changed("sheet") {
		cfg.Sheet = f.sheet
	}
	if changed("download") {
		cfg.DownloadDir = f.downloadDir
	}
	if changed("summary") {
		cfg.Summary = f.summary
	}
	if changed("catalog") {
		cfg.Catalog = f.catalog
	}
	if changed("exec") {
		cfg.Browser.ExecPath = f.execPath
	}
	if changed("profile") {
		cfg.Browser.ProfilePath = f.profile
	}
	if changed("log-dir") {
		cfg.LogDir = f.logDir
	}
	if changed("headless") {
		cfg.Browser.Headless = f.headless
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if changed("delay") {
		cfg.Timeouts.RecordDelay = config.Duration(f.delay)
	}
}

// newLogger returns a tint logger on stderr, teeing into a log file when
// cfg.LogDir is set. The returned func closes the file.
func newLogger(cfg config.Config) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	noColor := !isatty.IsTerminal(os.Stderr.Fd())
	closeFn := func() {}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		name := filepath.Join(cfg.LogDir, "download_"+time.Now().Format("20060102_150405")+".log")
		file, err := os.Create(name)
		if err != nil {
			return nil, nil, fmt.Errorf("create log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, file)
		noColor = true
		closeFn = func() { file.Close() }
	}

	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	}))
	return logger, closeFn, nil
}

func run(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	runID := uuid.NewString()
	log := logger.With("run", runID[:8])
	slog.SetDefault(log)

	log.Info("=== Statistical Spreadsheet Downloader ===", "version", appVersion)

	// Fatal preconditions, checked before a browser is launched.
	execPath, err := browser.Resolve(cfg.Browser.ExecPath)
	if err != nil {
		return fmt.Errorf("could not find Chrome/Chromium, install it or set --exec: %w", err)
	}
	records, err := batch.Load(cfg.Input, batch.Options{Sheet: cfg.Sheet, Logger: log})
	if err != nil {
		return err
	}

	downloadDir, err := filepath.Abs(cfg.DownloadDir)
	if err != nil {
		return fmt.Errorf("resolve download directory: %w", err)
	}
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	cfg.DownloadDir = downloadDir

	log.Info("configuration",
		"executable", execPath,
		"profile", cfg.Browser.ProfilePath,
		"download", downloadDir,
		"input", cfg.Input,
		"records", len(records),
	)

	bcfg := cfg.BrowserConfig(log)
	bcfg.ExecPath = execPath
	sess, err := browser.New(bcfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	runCtx, stop := signal.NotifyContext(sess.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := report.New(len(records))
	var ledger catalog.Ledger

	outcomes := processor.New(sess, &ledger, cfg.ProcessorConfig(log)).Run(runCtx, records)
	for _, o := range outcomes {
		stats.Add(o)
	}

	entries := ledger.Entries()
	summaryPath := cfg.SummaryPath()
	if err := catalog.WriteSummary(summaryPath, entries); err != nil {
		log.Error("mapping summary not written", "path", summaryPath, "error", err)
	} else {
		stats.SummaryPath = summaryPath
		log.Info("mapping summary written", "path", summaryPath, "entries", len(entries))
	}

	if cfg.Catalog != "" {
		// The run context may already be canceled; the catalog write is
		// bounded on its own.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := saveCatalog(saveCtx, cfg.Catalog, runID, entries); err != nil {
			log.Error("catalog not updated", "path", cfg.Catalog, "error", err)
		} else {
			log.Info("catalog updated", "path", cfg.Catalog, "run_id", runID)
		}
	}

	stats.Finish()
	stats.Render(stdout)
	log.Info(stats.Summary())
	return nil
}

func saveCatalog(ctx context.Context, path, runID string, entries []catalog.Entry) error {
	store, err := catalog.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, runID, entries)
}
