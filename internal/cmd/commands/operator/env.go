package operator

import (
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/quillpress/quill/internal/cmd/base"
	"github.com/quillpress/quill/internal/config"
	"github.com/quillpress/quill/pkg/database"
	"github.com/quillpress/quill/pkg/identity"
	"github.com/quillpress/quill/pkg/invalidate"
	"github.com/quillpress/quill/pkg/models"
)

// commonFlags are the flags every operator subcommand takes.
type commonFlags struct {
	config     string
	collection string
	json       bool
}

func (cf *commonFlags) register(f *base.FlagSet) {
	f.StringVar(
		&cf.config, "config", "",
		"Path to the quill HCL config file. Without it a local quill.db is used.",
	)
	f.StringVar(
		&cf.collection, "collection", "",
		"(Required) Collection to operate on: article, draft, moment, document or category.",
	)
	f.BoolVar(
		&cf.json, "json", false,
		"Print the result as JSON.",
	)
}

func (cf *commonFlags) parseCollection() (models.Collection, error) {
	if cf.collection == "" {
		return "", fmt.Errorf("collection flag is required")
	}
	return models.ParseCollection(cf.collection)
}

func newFlagSet(name string) *base.FlagSet {
	return base.NewFlagSet(flag.NewFlagSet(name, flag.ContinueOnError))
}

// env is what a subcommand needs to run: the database, the allocator and
// the invalidation pipeline.
type env struct {
	db         *gorm.DB
	alloc      *identity.Allocator
	registry   *invalidate.Registry
	dispatcher *invalidate.Dispatcher
}

func openEnv(configPath string, logger hclog.Logger) (*env, error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	logger.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	conn, err := cfg.Database.Connection()
	if err != nil {
		return nil, err
	}
	db, err := database.Connect(conn, logger)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	lockTimeout, err := cfg.Identity.Timeout()
	if err != nil {
		return nil, err
	}

	registry, err := invalidate.NewRegistry(cfg.Invalidation, logger)
	if err != nil {
		return nil, fmt.Errorf("error initializing invalidation backends: %w", err)
	}
	dc, err := cfg.Invalidation.Dispatcher()
	if err != nil {
		registry.Close()
		return nil, err
	}
	dispatcher := invalidate.NewDispatcher(registry.Invalidator(), logger, dc)

	alloc := identity.NewAllocator(db,
		identity.WithLogger(logger),
		identity.WithNotifier(dispatcher),
		identity.WithLockTimeout(lockTimeout),
	)

	return &env{
		db:         db,
		alloc:      alloc,
		registry:   registry,
		dispatcher: dispatcher,
	}, nil
}

// Close flushes pending invalidations and releases connections.
func (e *env) Close() {
	e.dispatcher.Close()
	e.registry.Close()
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
