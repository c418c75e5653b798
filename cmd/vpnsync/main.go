// vpnsync 按订阅状态一次性同步面板用户（供 cron 调用）。
//
//	vpnsync [-config config.ini] [--dry-run] [--notify]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	"momsvpn/backend/app"
	"momsvpn/backend/config"
	"momsvpn/backend/domain"
	"momsvpn/backend/logging"
	"momsvpn/backend/service/syncer"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.ini", "path to INI config file")
	dryRun := flag.Bool("dry-run", false, "only report what would change")
	notifyUsers := flag.Bool("notify", false, "send Telegram notifications on status changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	if err := logging.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		return 1
	}
	defer logging.Close()

	lock, ok, err := acquireLock(cfg.Sync.LockFile)
	if err != nil {
		log.Error().Err(err).Str("lock", cfg.Sync.LockFile).Msg("acquire lock failed")
		return 1
	}
	if !ok {
		log.Warn().Str("lock", cfg.Sync.LockFile).Msg("another sync is running, exiting")
		return 0
	}
	defer func() { _ = lock.Unlock() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("init services failed")
		return 1
	}
	// Close 会等待通知发送完成
	defer func() { _ = a.Close() }()

	mode := "LIVE"
	if *dryRun {
		mode = "DRY RUN"
	}
	log.Info().Str("mode", mode).Bool("notify", *notifyUsers).Msg("VPN subscription sync started")

	stats, err := a.Syncer.SyncAll(ctx, syncer.Options{DryRun: *dryRun, Notify: *notifyUsers})
	if err != nil {
		log.Error().Err(err).Msg("sync failed")
		return 1
	}
	fmt.Println(summary(stats))
	return 0
}

func acquireLock(path string) (*flock.Flock, bool, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, err
		}
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	return lock, ok, err
}

func summary(s domain.SyncStats) string {
	if s.DryRun {
		return fmt.Sprintf("Dry run complete. Checked: %d, Would enable: %d, Would disable: %d",
			s.Checked, s.WouldEnable, s.WouldDisable)
	}
	return fmt.Sprintf("Sync complete! Checked: %d, Enabled: %d, Disabled: %d, No change: %d, Errors: %d",
		s.Checked, s.Enabled, s.Disabled, s.NoChange, s.Errors)
}
