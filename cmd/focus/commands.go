package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/focus"
	"github.com/studytrack/backend/internal/models"
)

func newStartCmd(configDir *string) *cobra.Command {
	var (
		subjectID  int64
		phase      string
		minutes    int
		skipBreaks bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a focus session, or attach to the one already running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, *configDir)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.machine.Session() == nil {
				if subjectID <= 0 {
					return errors.New("--subject is required to start a new session")
				}
				err := a.machine.Start(ctx, subjectID, models.PhaseType(phase), minutes, skipBreaks)
				if err := outcome(stepStart, err); err != nil {
					return err
				}
			} else {
				fmt.Println(labelStyle.Render("Attached to running session " + a.machine.Session().ID))
			}

			return a.interactive(ctx)
		},
	}

	cmd.Flags().Int64Var(&subjectID, "subject", 0, "subject id to study")
	cmd.Flags().StringVar(&phase, "phase", string(models.PhaseLearning), "learning, revision or practice")
	cmd.Flags().IntVar(&minutes, "minutes", 50, "planned session length in minutes")
	cmd.Flags().BoolVar(&skipBreaks, "skip-breaks", false, "never prompt for breaks")
	return cmd
}

const keyHelp = "[p]ause [r]esume [b]reak [e]nd break [s]kip break [q]uit session [d]etach"

// interactive hands the machine to a Runner and maps typed keys to
// commands until the session ends or the user detaches.
func (a *app) interactive(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner := focus.NewRunner(a.machine, a.log.Named("runner"))
	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx) }()
	go a.heartbeat(ctx)

	keys := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			keys <- strings.TrimSpace(strings.ToLower(scanner.Text()))
		}
		close(keys)
	}()

	fmt.Println(labelStyle.Render(keyHelp))
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err

		case state := <-runner.Display():
			fmt.Print("\r\033[K" + timerLine(state))

		case key, ok := <-keys:
			if !ok || key == "d" {
				fmt.Println()
				fmt.Println(labelStyle.Render("Detached, the session keeps running"))
				return nil
			}
			fmt.Println()
			done, err := a.handleKey(ctx, runner, key)
			if err != nil {
				fmt.Println(errorStyle.Render(err.Error()))
			}
			if done {
				return nil
			}
		}
	}
}

func (a *app) handleKey(ctx context.Context, runner *focus.Runner, key string) (bool, error) {
	step := func(t transition, fn func(*focus.Machine, context.Context) error) error {
		return outcome(t, runner.Do(ctx, func(ctx context.Context, m *focus.Machine) error {
			return fn(m, ctx)
		}))
	}

	switch key {
	case "p":
		return false, step(stepPause, (*focus.Machine).Pause)
	case "r":
		return false, step(stepResume, (*focus.Machine).Resume)
	case "b":
		return false, step(stepBreak, (*focus.Machine).StartBreak)
	case "e":
		return false, step(stepEndBreak, (*focus.Machine).EndBreak)
	case "s":
		return false, step(stepSkipBreak, (*focus.Machine).SkipBreak)
	case "q":
		var (
			final models.SessionMetrics
			ended bool
		)
		err := runner.Do(ctx, func(ctx context.Context, m *focus.Machine) error {
			var err error
			final, err = m.Stop(ctx)
			ended = m.Session() == nil
			return err
		})
		if err := outcome(stepStop, err); err != nil {
			// A rejected stop has still ended the session on this device.
			return ended, err
		}
		fmt.Println(metricsPanel(final))
		return true, nil
	case "":
		return false, nil
	}
	return false, fmt.Errorf("unknown key %q, use %s", key, keyHelp)
}

func newStatusCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running session and the offline queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), *configDir)
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.queue.Pending(cmd.Context())
			if err != nil {
				return err
			}
			dead, err := a.store.DeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(statusPanel(a.machine.Display(), pending, len(dead)))
			return nil
		},
	}
}

func newActionCmd(configDir *string, use, short string, t transition, fn func(*focus.Machine, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), *configDir)
			if err != nil {
				return err
			}
			defer a.Close()

			return outcome(t, fn(a.machine, cmd.Context()))
		},
	}
}

func newStopCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Finish the session and record it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), *configDir)
			if err != nil {
				return err
			}
			defer a.Close()

			final, err := a.machine.Stop(cmd.Context())
			if err := outcome(stepStop, err); err != nil {
				return err
			}
			fmt.Println(metricsPanel(final))
			return nil
		},
	}
}

func newFlushCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Replay queued updates to the server now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), *configDir)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.queue.Flush(cmd.Context())
			if err != nil {
				a.log.Warn("flush stopped early", zap.Error(err))
			}
			fmt.Printf("%s  %s  %s\n",
				okStyle.Render(fmt.Sprintf("%d replayed", res.Replayed)),
				errorStyle.Render(fmt.Sprintf("%d undeliverable", res.DeadLettered)),
				warnStyle.Render(fmt.Sprintf("%d still queued", res.Remaining)),
			)
			return err
		},
	}
}

func newDeadLettersCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dead-letters",
		Short: "List updates the server never accepted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), *configDir)
			if err != nil {
				return err
			}
			defer a.Close()

			dead, err := a.store.DeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			if len(dead) == 0 {
				fmt.Println(labelStyle.Render("no undeliverable updates"))
				return nil
			}
			for _, d := range dead {
				fmt.Printf("%s %-10s %s  %s\n",
					labelStyle.Render(d.DiedAt.Format("2006-01-02 15:04")),
					d.Request.Action,
					labelStyle.Render(fmt.Sprintf("session %s, %d attempt(s):", d.Request.SessionID, d.Attempts)),
					errorStyle.Render(d.Reason),
				)
			}
			return nil
		},
	}
}
