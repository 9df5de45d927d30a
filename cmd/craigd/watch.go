package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/otherstuff/craigd/config"
	"github.com/otherstuff/craigd/internal/cvm"
	"github.com/otherstuff/craigd/internal/poster"
	"github.com/otherstuff/craigd/internal/store"
	"github.com/otherstuff/craigd/internal/trigger"
	"github.com/otherstuff/craigd/internal/watch"
)

func watchCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "watch [daily|weekly|montage|video|all]",
		Short: "Run stage watchers against the job store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			which := "all"
			if len(args) == 1 {
				which = args[0]
			}
			cfg := config.LoadConfig(cfgPath)
			return runWatchers(cfg, which)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return cmd
}

func runWatchers(cfg *config.Config, which string) error {
	st := store.New(cfg.Output.Dir)
	if err := st.EnsureRoot(); err != nil {
		return err
	}

	started := time.Now()
	runner := cvm.SessionRunner{Cfg: cfg.Tools}
	admit, err := buildAdmitter(cfg)
	if err != nil {
		return err
	}

	stages := map[string]func() *watch.Engine{
		"daily": func() *watch.Engine {
			logger := log.New(os.Stdout, "[DAILY] ", log.LstdFlags)
			stage := &watch.Daily{Store: st, Runner: runner, DefaultTool: cfg.Tools.DailyTool, Log: logger}
			return watch.NewEngine(stage, logger, cfg.Watch.PollInterval, cfg.Watch.Debounce, admit)
		},
		"weekly": func() *watch.Engine {
			logger := log.New(os.Stdout, "[WEEKLY] ", log.LstdFlags)
			stage := &watch.Weekly{Store: st, Runner: runner, DefaultTool: cfg.Tools.WeeklyTool, Log: logger}
			return watch.NewEngine(stage, logger, cfg.Watch.PollInterval, cfg.Watch.Debounce, admit)
		},
		"montage": func() *watch.Engine {
			logger := log.New(os.Stdout, "[MONTAGE] ", log.LstdFlags)
			stage := &watch.Montage{
				Store: st,
				Trigger: &trigger.Client{
					URL:   cfg.Trigger.URL,
					Token: cfg.Trigger.Token,
				},
				RecipeID:    cfg.Trigger.RecipeID,
				SessionName: cfg.Trigger.SessionName,
				Started:     started,
				Log:         logger,
			}
			return watch.NewEngine(stage, logger, cfg.Watch.PollInterval, cfg.Watch.Debounce, admit)
		},
		"video": func() *watch.Engine {
			logger := log.New(os.Stdout, "[VIDEO] ", log.LstdFlags)
			stage := &watch.Video{
				Store: st,
				Uploader: &poster.Uploader{
					Servers: cfg.Blossom.Servers,
					Paths:   cfg.Blossom.UploadPaths,
					Key:     cfg.Nostr.PrivateKey,
					Debug:   cfg.Blossom.Debug,
					Log:     logger,
				},
				Key:     cfg.Nostr.PrivateKey,
				Relays:  cfg.Nostr.Relays,
				Debug:   cfg.General.Debug,
				Started: started,
				Log:     logger,
			}
			return watch.NewEngine(stage, logger, cfg.Watch.PollInterval, cfg.Watch.VideoDebounce, admit)
		},
	}

	var selected []*watch.Engine
	if which == "all" {
		for _, build := range stages {
			selected = append(selected, build())
		}
	} else {
		build, ok := stages[which]
		if !ok {
			return fmt.Errorf("unknown stage %q (daily|weekly|montage|video|all)", which)
		}
		selected = append(selected, build())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Watch.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Watch.MetricsPort), Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	var wg sync.WaitGroup
	for _, engine := range selected {
		wg.Add(1)
		go func(e *watch.Engine) {
			defer wg.Done()
			e.Run(ctx)
		}(engine)
	}
	wg.Wait()
	return nil
}

func buildAdmitter(cfg *config.Config) (watch.Admitter, error) {
	if !cfg.Storage.Redis.Enabled() {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Storage.Redis.Timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
	}
	return watch.NewRedisAdmitter(rdb, 2*time.Minute), nil
}
