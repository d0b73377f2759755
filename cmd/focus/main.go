package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/config"
	"github.com/studytrack/backend/internal/focus"
	"github.com/studytrack/backend/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "focus",
		Short:         "Focus session timer for studytrack",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "", "directory holding focus.yaml")

	root.AddCommand(newStartCmd(&configDir))
	root.AddCommand(newStatusCmd(&configDir))
	root.AddCommand(newActionCmd(&configDir, "pause", "Pause the running session", stepPause, (*focus.Machine).Pause))
	root.AddCommand(newActionCmd(&configDir, "resume", "Resume a paused session", stepResume, (*focus.Machine).Resume))
	root.AddCommand(newActionCmd(&configDir, "break", "Start a break", stepBreak, (*focus.Machine).StartBreak))
	root.AddCommand(newActionCmd(&configDir, "end-break", "End the current break", stepEndBreak, (*focus.Machine).EndBreak))
	root.AddCommand(newActionCmd(&configDir, "skip-break", "Skip the break that is due", stepSkipBreak, (*focus.Machine).SkipBreak))
	root.AddCommand(newStopCmd(&configDir))
	root.AddCommand(newFlushCmd(&configDir))
	root.AddCommand(newDeadLettersCmd(&configDir))
	return root
}

// app is one process's claim on the local store plus the machine built on
// top of it.
type app struct {
	cfg     *config.ClientConfig
	log     *zap.Logger
	store   *focus.SQLiteStore
	queue   *focus.Queue
	machine *focus.Machine
	owner   string
}

func openApp(ctx context.Context, configDir string) (*app, error) {
	cfg, err := config.LoadClient(configDir)
	if err != nil {
		return nil, err
	}

	log := logger.Init(logger.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 30,
		Debug:      cfg.Debug,
	})

	store, err := focus.OpenSQLite(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	owner := uuid.New().String()
	if err := store.ClaimOwner(ctx, owner, time.Now()); err != nil {
		store.Close()
		return nil, err
	}

	deviceID, err := store.DeviceID(ctx)
	if err != nil {
		store.ReleaseOwner(ctx, owner)
		store.Close()
		return nil, err
	}

	remote := focus.NewHTTPRemote(cfg.ServerURL, cfg.Token)
	queue := focus.NewQueue(store, remote, focus.DefaultQueueConfig(), log.Named("queue"))
	machine := focus.NewMachine(remote, store, queue,
		focus.WithLogger(log.Named("machine")),
		focus.WithDevice(deviceID, cfg.Timezone),
	)
	if err := machine.Restore(ctx); err != nil {
		store.ReleaseOwner(ctx, owner)
		store.Close()
		return nil, err
	}

	log.Debug("focus store opened", zap.String("path", cfg.StorePath), zap.String("device_id", deviceID))
	return &app{cfg: cfg, log: log, store: store, queue: queue, machine: machine, owner: owner}, nil
}

func (a *app) Close() {
	if err := a.store.ReleaseOwner(context.Background(), a.owner); err != nil {
		a.log.Warn("release store", zap.Error(err))
	}
	a.store.Close()
	_ = a.log.Sync()
}

// heartbeat keeps the store claim fresh while a long-running command holds
// it.
func (a *app) heartbeat(ctx context.Context) {
	t := time.NewTicker(focus.OwnerTTL / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if err := a.store.ClaimOwner(ctx, a.owner, now); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("refresh store claim", zap.Error(err))
			}
		}
	}
}

// transition names a machine step for user feedback. Local steps (breaks,
// stop) change the stored session before the server is asked; the others
// only change it once the server acknowledges.
type transition struct {
	done  string
	local bool
}

var (
	stepStart     = transition{done: "Session started"}
	stepPause     = transition{done: "Paused"}
	stepResume    = transition{done: "Resumed"}
	stepBreak     = transition{done: "Break started", local: true}
	stepEndBreak  = transition{done: "Break ended", local: true}
	stepSkipBreak = transition{done: "Break skipped", local: true}
	stepStop      = transition{done: "Stopped", local: true}
)

// outcome turns the machine's error taxonomy into user feedback. A queued
// update is a success from the user's point of view.
func outcome(t transition, err error) error {
	switch {
	case err == nil:
		fmt.Println(okStyle.Render(t.done))
		return nil
	case errors.Is(err, focus.ErrQueued):
		fmt.Println(okStyle.Render(t.done) + " " + warnStyle.Render("(offline, will sync later)"))
		return nil
	case errors.Is(err, focus.ErrSyncFailed) && t.local:
		return fmt.Errorf("%s on this device, but the server rejected the update: %w", t.done, err)
	case errors.Is(err, focus.ErrSyncFailed) && focus.IsRetryable(err):
		return fmt.Errorf("server unreachable, nothing changed: %w", err)
	case errors.Is(err, focus.ErrSyncFailed):
		return fmt.Errorf("server rejected the update, nothing changed: %w", err)
	}
	return err
}
