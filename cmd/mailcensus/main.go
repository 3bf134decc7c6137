package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"mailcensus/internal/config"
	"mailcensus/internal/gmail"
	"mailcensus/internal/ingest"
	"mailcensus/internal/report"
	"mailcensus/internal/store"
)

func main() {
	var (
		budget           = flag.Int("budget", 0, "max new messages to fold this run (0 = config default)")
		export           = flag.Bool("export", false, "report existing data only; no network access")
		backend          = flag.String("store", "", "storage backend: file or sqlite (default from config)")
		configDir        = flag.String("config-dir", "", "config/credential directory (default ~/.config/mailcensus)")
		includeSpamTrash = flag.Bool("include-spam-trash", false, "also scan spam and trash")
		verbose          = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	dir := *configDir
	if dir == "" {
		var err error
		dir, err = config.DefaultDir()
		if err != nil {
			logger.Error("cannot determine config directory", "err", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(dir)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if *budget > 0 {
		cfg.Budget = *budget
	}
	if *backend != "" {
		cfg.Store = *backend
	}
	if *includeSpamTrash {
		cfg.IncludeSpamTrash = true
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Load(ctx); err != nil {
		logger.Error("load stores", "err", err)
		os.Exit(1)
	}

	if *export {
		records := st.Records()
		fmt.Println(report.Render(records))
		fmt.Println(report.RenderTotals(records))
		fmt.Printf("Tracking %d senders; no messages processed (export only).\n", st.SenderCount())
		return
	}

	// Gmail setup is the precondition for the run: a failure here is fatal
	// and nothing has been written yet.
	svc, err := gmail.NewService(ctx, dir)
	if err != nil {
		logger.Error("gmail setup failed", "err", err)
		os.Exit(1)
	}

	runner := &ingest.Runner{
		Source: gmail.NewSource(svc, cfg.PageSize, cfg.IncludeSpamTrash),
		Store:  st,
		Budget: cfg.Budget,
		Logger: logger,
	}
	sum, err := runner.Run(ctx)
	if err != nil {
		logger.Error("run failed", "err", err)
		os.Exit(1)
	}

	records := st.Records()
	fmt.Println(report.Render(records))
	fmt.Println(report.RenderTotals(records))
	if sum.Interrupted {
		logger.Warn("interrupted; partial progress persisted")
	}
	fmt.Printf("Processed %d new messages this run (%d failed); tracking %d senders in total.\n",
		sum.Processed, sum.Failed, sum.TotalSenders)
}

func openStore(cfg *config.Config, logger *log.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return store.NewSQLiteStore(filepath.Join(cfg.DataDir, "mailcensus.db"), logger)
	case config.StoreFile, "":
		return store.NewFileStore(cfg.DataDir, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
