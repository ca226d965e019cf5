// Command tg-twitter-sync runs the Telegram ↔ X bridge: it accepts post
// drafts from an authorized Telegram user, publishes them to X after
// confirmation, and mirrors inbound X direct messages back into Telegram.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/auth"
	"github.com/LunaSea00/tg-twitter-sync/internal/config"
	"github.com/LunaSea00/tg-twitter-sync/internal/confirm"
	"github.com/LunaSea00/tg-twitter-sync/internal/dm"
	"github.com/LunaSea00/tg-twitter-sync/internal/httpapi"
	"github.com/LunaSea00/tg-twitter-sync/internal/lockfile"
	"github.com/LunaSea00/tg-twitter-sync/internal/media"
	"github.com/LunaSea00/tg-twitter-sync/internal/ratelimit"
	"github.com/LunaSea00/tg-twitter-sync/internal/scheduler"
	"github.com/LunaSea00/tg-twitter-sync/internal/store"
	"github.com/LunaSea00/tg-twitter-sync/internal/telegram"
	"github.com/LunaSea00/tg-twitter-sync/internal/xapi"
)

// draftSweepSchedule runs often enough that an abandoned preview expires
// close to its TTL.
const draftSweepSchedule = "*/10 * * * *"

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("starting tg-twitter-sync",
		"dry_run", cfg.DryRun, "skip_verification", cfg.SkipVerification,
		"dm_monitor", cfg.DMMonitorEnabled, "state_dir", cfg.StateDir)

	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		slog.Error("could not lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	dedup, err := store.Open(cfg.DedupDSN)
	if err != nil {
		slog.Error("could not open dedup store", "error", err)
		os.Exit(1)
	}

	tokenSrc := auth.NewSource(auth.NewFileTokenStore(cfg.TokenFile))
	gov := ratelimit.New(ratelimit.Config{
		MinInterval:   cfg.MinRequestInterval,
		MaxRetries:    cfg.MaxRetries,
		BackoffFactor: cfg.BackoffFactor,
		MaxBackoff:    cfg.MaxBackoff,
		CacheEnabled:  cfg.CacheEnabled,
		CacheTTL:      cfg.CacheTTL,
	})
	client := xapi.NewClient(cfg.Credentials,
		xapi.Config{SkipVerification: cfg.SkipVerification, DryRun: cfg.DryRun},
		gov,
		xapi.WithUserTokenSource(tokenSrc.Token),
	)
	tokenSrc.SetRefresher(client)

	bot, err := telegram.NewBot(cfg.TelegramToken)
	if err != nil {
		slog.Error("telegram connection failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Non-fatal: the first real post reports a classified error anyway, and
	// an operator may deliberately start while X is down.
	if _, err := client.VerifyConnection(ctx); err != nil {
		slog.Warn("x connection verification failed at startup", "error", err)
	}

	manager := dm.NewManager(client, dedup, bot, cfg.DMTargetChatID, cfg.PollInterval, cfg.DedupMaxAge)
	drafts := confirm.NewRegistry(cfg.DraftTTL)
	fetcher := media.NewFetcher(cfg.MediaMaxBytes)
	handler := telegram.NewHandler(bot, client, drafts, fetcher, manager, cfg.AuthorizedUserID, cfg.DryRun)

	// Prune once at startup, then nightly.
	manager.Prune()
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(cfg.PruneSchedule, manager.Prune); err != nil {
		slog.Error("invalid prune schedule", "schedule", cfg.PruneSchedule, "error", err)
		os.Exit(1)
	}
	if err := sched.AddJob(draftSweepSchedule, func() { drafts.Sweep() }); err != nil {
		slog.Error("invalid sweep schedule", "error", err)
		os.Exit(1)
	}

	if cfg.DMMonitorEnabled {
		if err := manager.Start(ctx); err != nil {
			slog.Error("dm monitor start failed, continuing without dm mirroring", "error", err)
		}
	} else {
		slog.Info("dm monitor disabled by configuration")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tokenSrc.RunRefresher(ctx, time.Minute)
	}()
	go func() {
		defer wg.Done()
		handler.Run(ctx)
	}()

	srv := httpapi.NewServer(cfg.HealthAddr, manager)
	if err := srv.Run(ctx); err != nil {
		slog.Error("http server failed", "error", err)
	}

	stop()
	manager.Stop()
	wg.Wait()
	slog.Info("tg-twitter-sync stopped")
}
