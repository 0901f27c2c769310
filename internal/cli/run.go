// Package cli provides the run command, the main entry into the engine.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fenrik/clickseq/internal/assets"
	"github.com/fenrik/clickseq/internal/db"
	"github.com/fenrik/clickseq/internal/events"
	"github.com/fenrik/clickseq/internal/hotkeys"
	"github.com/fenrik/clickseq/internal/input"
	"github.com/fenrik/clickseq/internal/library"
	"github.com/fenrik/clickseq/internal/logging"
	"github.com/fenrik/clickseq/internal/models"
	"github.com/fenrik/clickseq/internal/runner"
	"github.com/fenrik/clickseq/internal/scan"
	"github.com/fenrik/clickseq/internal/screen"
	"github.com/fenrik/clickseq/internal/tui"
	"github.com/fenrik/clickseq/internal/vision"
)

// eventRingSize bounds the in-memory event log shown by the watch view.
const eventRingSize = 256

var (
	runCycles   int
	runHeadless bool
	runTheme    string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runCycles, "cycles", -1, "override the sequence cycle count (0 = run until stopped)")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run without the live watch view")
	runCmd.Flags().StringVar(&runTheme, "theme", "default", "watch view theme (default, high-contrast)")
}

var runCmd = &cobra.Command{
	Use:   "run <sequence>",
	Short: "Execute a sequence",
	Long: `Execute a sequence by name or file path.

The live watch view attaches automatically on a TTY; press q to detach
without stopping the run. While the run lives, global hotkeys stay active:
ctrl+alt+x stop, ctrl+alt+p pause/resume, ctrl+alt+n skip the current wait,
ctrl+alt+z restart, ctrl+alt+s stop/start toggle, ctrl+alt+a capture the
pointer as a new point, ctrl+alt+q quit.`,
	Example: `  # Run by name, watching live
  clickseq run harvest

  # Run a sequence file three times without the watch view
  clickseq run ./harvest.yaml --cycles 3 --headless`,
	Args: cobra.ExactArgs(1),
	RunE: runSequence,
}

func runSequence(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := GetConfig()
	logger := logging.Component("cli")

	step := startProgress("Loading sequence")
	seq, err := resolveSequence(cfg.DataDir, args[0])
	if err != nil {
		step.Fail(err)
		return &PreflightError{
			Message:  err.Error(),
			Hint:     "sequences are YAML files under " + filepath.Join(cfg.DataDir, "sequences"),
			NextStep: "clickseq sequences list",
		}
	}
	step.Done()

	if runCycles >= 0 {
		seq.Cycles = runCycles
	}

	step = startProgress("Loading library")
	lib, err := openLibrary()
	if err != nil {
		step.Fail(err)
		return err
	}
	store := assets.NewStore(cfg.DataDir)
	glyphs, err := store.Glyphs(cfg.NumberInkTolerance)
	if err != nil {
		step.Fail(err)
		return err
	}
	step.Done()

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	ring := events.NewRing(eventRingSize)
	sink := events.NewFanout(
		ring,
		events.NewDatabaseSink(db.NewEventRepository(database)),
		events.NewLoggerSink(),
	)

	display := screen.NewDisplay()
	matcher := &vision.Matcher{
		MarkerTolerance:   cfg.MarkerTolerance,
		TemplateTolerance: cfg.MarkerTolerance,
		Templates:         store,
	}
	var reader *vision.Reader
	if len(glyphs) > 0 {
		reader = &vision.Reader{
			Glyphs:        glyphs,
			MinConfidence: cfg.NumberMinConfidence,
			InkTolerance:  cfg.NumberInkTolerance,
		}
	}
	robot := input.NewRobot(cfg.ClickMoveDelay, cfg.PostClickDelay)

	eng := runner.New(runner.FromConfig(cfg), runner.Deps{
		Injector: robot,
		Screen:   display,
		Resolver: scan.NewResolver(display, matcher, cfg.ScanSlotDelay),
		Reader:   reader,
		FailSafe: input.NewFailSafe(cfg.FailSafeEnabled, cfg.FailSafeCorner, robot),
		Sink:     sink,
		Store:    db.NewRunRepository(database),
	})

	run := runner.Run{Sequence: seq, Points: lib.PointMap(), Scans: lib.ScanMap()}
	controls := newEngineControls(eng)
	toggles := make(chan struct{}, 1)

	if cfg.HotkeysEnabled {
		listener := hotkeys.NewListener(hotkeys.Actions{
			Engine: controls,
			Toggle: func() {
				select {
				case toggles <- struct{}{}:
				default:
				}
			},
			Capture: func() { capturePoint(lib, robot, logger) },
		})
		if err := listener.Start(); err != nil {
			logger.Warn().Err(err).Msg("global hotkeys unavailable")
		} else {
			defer listener.Close()
		}
	}

	if err := eng.Start(ctx, run); err != nil {
		return err
	}
	logger.Info().Str("sequence", seq.Name).Int("cycles", seq.Cycles).Msg("run started")

	if showWatchView() {
		if err := tui.Watch(tui.Options{Engine: eng, Events: ring, Theme: runTheme}); err != nil {
			logger.Warn().Err(err).Msg("watch view failed, continuing headless")
		}
	}

	if err := waitForRun(ctx, controls, run, toggles); err != nil {
		return err
	}
	return reportRun(eng.Stats())
}

func showWatchView() bool {
	if runHeadless || IsJSONOutput() || IsJSONLOutput() {
		return false
	}
	return IsInteractive()
}

// engineControls forwards hotkey signals to the engine and makes the quit
// hotkey observable to the command's wait loop.
type engineControls struct {
	*runner.Engine
	quitOnce sync.Once
	quitCh   chan struct{}
}

func newEngineControls(eng *runner.Engine) *engineControls {
	return &engineControls{Engine: eng, quitCh: make(chan struct{})}
}

func (c *engineControls) Quit() error {
	c.quitOnce.Do(func() { close(c.quitCh) })
	return c.Engine.Quit()
}

// waitForRun blocks until the run reaches a terminal state. The toggle
// hotkey may stop the run and later start a fresh one, so a toggle-stopped
// engine parks here instead of exiting; an interrupt stops first and quits
// on repeat.
func waitForRun(ctx context.Context, controls *engineControls, run runner.Run, toggles <-chan struct{}) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	eng := controls.Engine
	done := eng.Done()
	parked := false
	interrupts := 0

	for {
		select {
		case <-done:
			if !parked {
				return nil
			}
			done = nil

		case <-toggles:
			if eng.Running() {
				parked = true
				_ = eng.Stop()
				continue
			}
			parked = false
			if err := eng.Start(ctx, run); err != nil {
				return err
			}
			done = eng.Done()

		case <-controls.quitCh:
			<-eng.Done()
			return nil

		case <-sigCh:
			interrupts++
			if interrupts == 1 && eng.Running() {
				fmt.Fprintln(os.Stderr, "Stopping after the current step (interrupt again to quit)...")
				parked = false
				_ = eng.Stop()
				done = eng.Done()
				continue
			}
			_ = controls.Quit()
			<-eng.Done()
			return nil
		}
	}
}

func reportRun(st runner.Stats) error {
	if IsJSONOutput() || IsJSONLOutput() {
		if err := WriteOutput(os.Stdout, st); err != nil {
			return err
		}
	} else {
		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintf(writer, "Sequence:\t%s\n", st.SequenceName)
		fmt.Fprintf(writer, "Status:\t%s\n", formatRunStatus(st.Status))
		if st.RunID != "" {
			fmt.Fprintf(writer, "Run ID:\t%s\n", st.RunID)
		}
		fmt.Fprintf(writer, "Elapsed:\t%s\n", st.Run.Elapsed.Truncate(time.Second))
		fmt.Fprintf(writer, "Cycles:\t%d\n", st.Run.CyclesCompleted)
		fmt.Fprintf(writer, "Clicks:\t%d\n", st.Run.Clicks)
		fmt.Fprintf(writer, "Items clicked:\t%d\n", st.Run.ItemsClicked)
		fmt.Fprintf(writer, "Keys pressed:\t%d\n", st.Run.KeysPressed)
		fmt.Fprintf(writer, "Trigger timeouts:\t%d\n", st.Run.TriggerTimeouts)
		fmt.Fprintf(writer, "Restarts:\t%d\n", st.Run.Restarts)
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	if st.Status == models.RunStatusFailed {
		return fmt.Errorf("run failed: %s", st.Error)
	}
	return nil
}

// capturePoint saves the current pointer location as a new point. Bound to
// the capture hotkey, so failures only log.
func capturePoint(lib *library.Library, robot *input.Robot, logger zerolog.Logger) {
	x, y := robot.PointerLocation()
	point := lib.AddPoint("", x, y)
	if err := lib.SavePoints(); err != nil {
		logger.Error().Err(err).Msg("failed to save captured point")
		return
	}
	logger.Info().Str("point", point.ID).Int("x", x).Int("y", y).Msg("point captured")
}
