// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/88dreams/SheetGPT-sub005/internal/cache"
	"github.com/88dreams/SheetGPT-sub005/internal/config"
	"github.com/88dreams/SheetGPT-sub005/internal/engine"
	"github.com/88dreams/SheetGPT-sub005/internal/events"
	"github.com/88dreams/SheetGPT-sub005/internal/logging"
	"github.com/88dreams/SheetGPT-sub005/internal/rules"
)

type appOptions struct {
	envFile   string
	rulesFile string
}

// app is the wired engine plus everything that must be released on exit.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	pipeline *engine.Pipeline
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

// newApp loads configuration and wires the pipeline. Long-running commands
// pass watch=true so rule edits are picked up without a restart.
func newApp(ctx context.Context, opts *appOptions, watch bool) (*app, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, err
	}
	if opts.rulesFile != "" {
		cfg.RulesFile = opts.rulesFile
	}

	log, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Production: cfg.IsProduction(),
		FilePath:   cfg.LogFilePath,
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	r := rules.Default()
	if cfg.RulesFile != "" {
		if r, err = rules.Load(cfg.RulesFile); err != nil {
			a.Close()
			return nil, err
		}
		log.Info("rules loaded", zap.String("path", cfg.RulesFile))
	}

	engineOpts := []engine.Option{engine.WithLogger(log)}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "sheetgpt:", cfg.CacheTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		engineOpts = append(engineOpts, engine.WithCache(rc, cfg.CacheTTL))
		log.Info("using redis extraction cache")
	} else {
		engineOpts = append(engineOpts, engine.WithCache(cache.NewMemory(cfg.CacheTTL, 10*time.Minute), cfg.CacheTTL))
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATS(cfg.NATSURL, cfg.NATSToken, cfg.NATSSubject, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		engineOpts = append(engineOpts, engine.WithPublisher(pub))
		log.Info("publishing extraction events", zap.String("subject", cfg.NATSSubject))
	}

	a.pipeline = engine.NewPipeline(r, engineOpts...)

	if watch && cfg.WatchRules && cfg.RulesFile != "" {
		w, err := rules.NewWatcher(cfg.RulesFile, a.pipeline.SetRules, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("watching rules: %w", err)
		}
		go w.Run(ctx)
		log.Info("watching rules file", zap.String("path", cfg.RulesFile))
	}

	return a, nil
}
