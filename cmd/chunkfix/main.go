package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chunkfix.dev/internal/config"
	persistlog "chunkfix.dev/internal/persistence/log"
	"chunkfix.dev/internal/persistence/indexdb"
	"chunkfix.dev/internal/repair"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "scan":
			os.Exit(scanCmd(os.Args[2:]))
		case "db":
			dbCmd(os.Args[2:])
			return
		}
	}
	os.Exit(scanCmd(os.Args[1:]))
}

// scanCmd returns the process exit code so deferred closes run first.
func scanCmd(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	sf := registerScanFlags(fs)
	_ = fs.Parse(args)

	logger := log.New(os.Stdout, "[chunkfix] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*sf.configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	sf.apply(fs, &cfg)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	audit := persistlog.NewRepairLogger(cfg.AuditDir)
	defer audit.Close()

	var idx *indexdb.SQLiteIndex
	if !*sf.noDB {
		idx, err = indexdb.OpenSQLite(cfg.IndexDB)
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := repair.NewRunner(repair.Options{
		WorldDir:             cfg.WorldDir,
		Dimensions:           cfg.Dimensions,
		Workers:              cfg.Workers,
		DryRun:               cfg.DryRun,
		Backup:               cfg.Backup,
		Seed:                 cfg.Seed,
		MaxReferenceDistance: cfg.ReferenceMaxDistance,
		Registry:             cfg.Registry(),
	}, logger, audit, recorderOrNil(idx))

	logger.Printf("scanning world=%s dimensions=%q workers=%d dry_run=%v", cfg.WorldDir, cfg.Dimensions, cfg.Workers, cfg.DryRun)
	started := time.Now()
	sum, runErr := runner.Run(ctx)
	idx.RecordRun(cfg.WorldDir, cfg.DryRun, started, time.Now(), sum)

	b, _ := json.Marshal(sum)
	logger.Printf("done in %s: %s", time.Since(started).Round(time.Millisecond), b)
	if n := idx.Dropped(); n > 0 {
		logger.Printf("index: %d writes not stored (see audit log)", n)
	}
	if runErr != nil {
		logger.Printf("scan aborted: %v", runErr)
		return 1
	}
	if sum.Failed > 0 {
		return 1
	}
	return 0
}

type scanFlags struct {
	configPath *string
	worldDir   *string
	dims       *string
	workers    *int
	dryRun     *bool
	noBackup   *bool
	noDB       *bool
}

func registerScanFlags(fs *flag.FlagSet) scanFlags {
	return scanFlags{
		configPath: fs.String("config", "", "path to chunkfix.yaml (optional)"),
		worldDir:   fs.String("world", "", "world directory (overrides config)"),
		dims:       fs.String("dimensions", "", "comma separated region dirs relative to the world, \"\" for the overworld (overrides config)"),
		workers:    fs.Int("workers", 0, "region files processed in parallel (overrides config)"),
		dryRun:     fs.Bool("dry_run", false, "report repairs without writing region files (overrides config)"),
		noBackup:   fs.Bool("no_backup", false, "do not copy region files to .bak before the first write"),
		noDB:       fs.Bool("disable_db", false, "disable the sqlite repair index"),
	}
}

// apply overrides cfg with the flags given on the command line.
func (sf scanFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	if w := strings.TrimSpace(*sf.worldDir); w != "" {
		cfg.WorldDir = w
		cfg.AuditDir, cfg.IndexDB = "", ""
	}
	if isSet(fs, "dimensions") {
		cfg.Dimensions = strings.Split(*sf.dims, ",")
	}
	if *sf.workers > 0 {
		cfg.Workers = *sf.workers
	}
	if isSet(fs, "dry_run") {
		cfg.DryRun = *sf.dryRun
	}
	if *sf.noBackup {
		cfg.Backup = false
	}
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// recorderOrNil keeps a nil index from becoming a non-nil interface value.
func recorderOrNil(idx *indexdb.SQLiteIndex) repair.Recorder {
	if idx == nil {
		return nil
	}
	return idx
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
