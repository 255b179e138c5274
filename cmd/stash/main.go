// Package main provides the stash CLI, which replays an inventory script
// against a fresh Store and optionally persists the resulting containers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/stash/internal/config"
	"github.com/cory-johannsen/stash/internal/inventory"
	"github.com/cory-johannsen/stash/internal/observability"
	"github.com/cory-johannsen/stash/internal/persist"
	"github.com/cory-johannsen/stash/internal/script"
	"github.com/cory-johannsen/stash/internal/scripting"
	"github.com/cory-johannsen/stash/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	scriptPath := flag.String("script", "", "path to the script YAML to run (required)")
	itemsDir := flag.String("items", "", "item template directory; overrides content.items_dir")
	hooksDir := flag.String("hooks", "", "Lua hook directory; overrides scripting.hooks_dir")
	restore := flag.Bool("restore", false, "load persisted containers before running the script")
	dump := flag.Bool("dump", false, "print every container as YAML after the script")
	flag.Parse()

	if *scriptPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *itemsDir != "" {
		cfg.Content.ItemsDir = *itemsDir
	}
	if *hooksDir != "" {
		cfg.Scripting.HooksDir = *hooksDir
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	templates, err := loadTemplates(cfg.Content.ItemsDir, logger)
	if err != nil {
		logger.Fatal("loading item templates", zap.Error(err))
	}

	sc, err := script.Load(*scriptPath)
	if err != nil {
		logger.Fatal("loading script", zap.Error(err))
	}

	ctx := context.Background()
	store := inventory.NewStore(logger.Named("store"))

	var repo *postgres.ContainerRepository
	if cfg.Persistence.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Health(ctx, 5*time.Second); err != nil {
			logger.Fatal("database health check failed", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		repo = postgres.NewContainerRepository(pool.DB())

		if *restore {
			n, err := persist.Restore(ctx, repo, store)
			if err != nil {
				logger.Fatal("restoring containers", zap.Error(err))
			}
			logger.Info("containers restored", zap.Int("count", n))
		}
	}

	floor := inventory.NewFloor(store)
	defer floor.Close()
	cursor, err := inventory.NewCursor(store,
		inventory.WithDragThreshold(cfg.Cursor.DragThreshold),
		inventory.WithGround(floor.Area(cfg.Cursor.Area)),
	)
	if err != nil {
		logger.Fatal("creating cursor", zap.Error(err))
	}

	var tracker *persist.Tracker
	if repo != nil {
		tracker = persist.NewTracker(store,
			persist.Exclude(inventory.CursorID),
			persist.WithLogger(logger.Named("persist")),
		)
		defer tracker.Close()
	}

	hooks, err := loadHooks(store, cfg.Scripting, logger)
	if err != nil {
		logger.Fatal("loading hooks", zap.Error(err))
	}
	if hooks != nil {
		defer hooks.Close()
	}

	logger.Info("running script",
		zap.String("script", sc.Name),
		zap.Int("steps", len(sc.Steps)),
	)
	runner := script.NewRunner(store, cursor, templates, logger.Named("script"))
	if err := runner.Run(ctx, sc); err != nil {
		logger.Error("script failed", zap.Error(err))
		os.Exit(1)
	}

	if tracker != nil {
		flushCtx, cancel := context.WithTimeout(ctx, cfg.Persistence.FlushTimeout)
		n, err := tracker.Flush(flushCtx, repo)
		cancel()
		if err != nil {
			logger.Error("flushing containers", zap.Error(err), zap.Int("pending", tracker.Pending()))
			os.Exit(1)
		}
		logger.Info("containers persisted", zap.Int("written", n))
	}

	if *dump {
		if err := dumpContainers(store); err != nil {
			logger.Fatal("dumping containers", zap.Error(err))
		}
	}

	if hooks != nil && hooks.Failures() > 0 {
		logger.Warn("hooks failed during the run", zap.Int("failures", hooks.Failures()))
	}
	logger.Info("done", zap.Duration("elapsed", time.Since(start)))
}

// loadTemplates reads item templates from dir. A missing directory yields an
// empty registry so scripts using only inline items still run.
func loadTemplates(dir string, logger *zap.Logger) (*inventory.TemplateRegistry, error) {
	tpls, err := inventory.LoadTemplates(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("item template directory missing", zap.String("dir", dir))
			return inventory.NewTemplateRegistry()
		}
		return nil, err
	}
	reg, err := inventory.NewTemplateRegistry(tpls...)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded item templates", zap.Int("count", len(tpls)))
	return reg, nil
}

// loadHooks attaches the Lua hooks in cfg.HooksDir to store. It returns nil
// when hooks are disabled or the directory is missing.
func loadHooks(store *inventory.Store, cfg config.ScriptingConfig, logger *zap.Logger) (*scripting.Manager, error) {
	if cfg.HooksDir == "" {
		return nil, nil
	}
	m := scripting.NewManager(store,
		scripting.WithInstructionLimit(cfg.InstructionLimit),
		scripting.WithLogger(logger.Named("lua")),
	)
	n, err := m.LoadDir(cfg.HooksDir)
	if err != nil {
		m.Close()
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("hook directory missing", zap.String("dir", cfg.HooksDir))
			return nil, nil
		}
		return nil, err
	}
	m.Attach()
	logger.Info("loaded hooks", zap.Int("count", n), zap.String("dir", cfg.HooksDir))
	return m, nil
}

func dumpContainers(store *inventory.Store) error {
	for _, id := range store.Containers() {
		c, _ := store.Container(id)
		out, err := inventory.Export(c).EncodeYAML()
		if err != nil {
			return fmt.Errorf("encoding %q: %w", id, err)
		}
		fmt.Fprintf(os.Stdout, "---\n%s", out)
	}
	return nil
}
