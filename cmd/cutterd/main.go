// Package main runs the cutter drive controller.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/cutterdrive/config"
	"go.viam.com/cutterdrive/controller"
	"go.viam.com/cutterdrive/ftdc"
	"go.viam.com/cutterdrive/logging"
	"go.viam.com/cutterdrive/utils"
)

const (
	flagConfig   = "config"
	flagDebug    = "debug"
	flagSimulate = "simulate"
	flagCapture  = "capture"
	flagStatus   = "status-interval"
)

func main() {
	logger := logging.NewLogger("cutterd")

	app := &cli.App{
		Name:  "cutterd",
		Usage: "run and inspect the cutter drive controller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger.SetLevel(logging.DEBUG)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the control cycle until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagSimulate,
						Usage: "simulate every adapter and script the trigger",
					},
					&cli.StringFlag{
						Name:  flagCapture,
						Usage: "capture every cycle to `FILE`",
					},
					&cli.DurationFlag{
						Name:  flagStatus,
						Value: time.Second,
						Usage: "how often to log the drive status",
					},
				},
				Action: func(c *cli.Context) error {
					return runAction(c, logger)
				},
			},
			{
				Name:  "check-config",
				Usage: "validate a configuration and print the resulting engine settings",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					printConfig(c, cfg)
					return nil
				},
			},
			{
				Name:      "parse-capture",
				Usage:     "print the cycles stored in a capture file",
				ArgsUsage: "<capture file>",
				Action: func(c *cli.Context) error {
					return parseCaptureAction(c, logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		goutils.UncheckedError(logger.Sync())
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		cfg := config.DefaultConfig()
		return &cfg, nil
	}
	cfg, err := config.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", path)
	}
	return cfg, nil
}

func printConfig(c *cli.Context, cfg *config.Config) {
	w := c.App.Writer
	e := cfg.Engine
	fmt.Fprintf(w, "cycle rate:        %d Hz\n", e.CycleHz)
	fmt.Fprintf(w, "cut type:          %s\n", e.CutType)
	fmt.Fprintf(w, "direction:         %s\n", e.Direction)
	fmt.Fprintf(w, "speed range:       %d..%d rpm\n", e.MinSpeed, e.MaxSpeed)
	fmt.Fprintf(w, "irrigation level:  %d\n", e.IrrigationLevel)
	fmt.Fprintf(w, "reset cycles:      %d\n", e.ResetCycles)
	fmt.Fprintf(w, "handpiece:         %s\n", adapterName(cfg.Handpiece.Simulate, cfg.Handpiece.Device))
	fmt.Fprintf(w, "board:             %s\n", adapterName(cfg.Board.Simulate, cfg.Board.Chip))
	fmt.Fprintf(w, "expander:          %s\n", adapterName(cfg.Expander.Simulate, cfg.Expander.RelayPort))
}

func adapterName(simulate bool, device string) string {
	if simulate {
		return "simulated"
	}
	return device
}

func setupLogging(cfg *config.Config, debug bool, logger logging.Logger) (func(), error) {
	if !debug {
		level, err := logging.LevelFromString(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	}
	if cfg.Log.File == "" {
		return func() {}, nil
	}
	appender := logging.NewFileAppender(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
	logger.AddAppender(appender)
	return func() { goutils.UncheckedError(appender.Close()) }, nil
}

func runAction(c *cli.Context, logger logging.Logger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool(flagSimulate) {
		cfg.Handpiece.Simulate = true
		cfg.Board.Simulate = true
		cfg.Expander.Simulate = true
	}
	if path := c.String(flagCapture); path != "" {
		cfg.Capture.Path = path
	}
	closeLogs, err := setupLogging(cfg, c.Bool(flagDebug), logger)
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()
	sys, err := controller.Build(cfg, clk, logger)
	if err != nil {
		return err
	}
	if err := sys.Controller.Start(ctx); err != nil {
		return multierr.Combine(err, sys.Close(context.Background()))
	}

	workers := utils.NewStoppableWorkersWithContext(ctx, func(ctx context.Context) {
		logStatus(ctx, clk, c.Duration(flagStatus), sys.Controller, logger)
	})
	if sys.Handpiece != nil && sys.Inputs != nil {
		workers.AddWorkers(func(ctx context.Context) {
			scriptOperator(ctx, clk, sys, logger)
		})
	}

	<-ctx.Done()
	logger.Info("shutting down")
	workers.Stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sys.Close(closeCtx)
}

func logStatus(ctx context.Context, clk clock.Clock, interval time.Duration, ctrl *controller.Controller, logger logging.Logger) {
	ticker := clk.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		snap := ctrl.Snapshot()
		logger.Infow("drive status",
			"calibrated", snap.Status.Calibrated,
			"running", snap.Status.Running,
			"level", snap.Status.Level,
			"target_rpm", snap.Status.TargetSpeed,
			"temperature_c", snap.Status.TemperatureC,
			"faults", snap.Faults.String(),
			"operating_time", snap.OperatingTime.String(),
		)
	}
}

// scriptOperator plays an operator against the simulated adapters: enable, a slow trigger
// sweep up and back, then a pause with enable released.
func scriptOperator(ctx context.Context, clk clock.Clock, sys *controller.System, logger logging.Logger) {
	const (
		steps    = 50
		stepTime = 40 * time.Millisecond
		pause    = 2 * time.Second
	)
	for {
		logger.Debug("simulated operator pulls the trigger")
		sys.Inputs.SetEnable(true)
		for i := 0; i <= 2*steps; i++ {
			pos := float64(i) / steps
			if i > steps {
				pos = float64(2*steps-i) / steps
			}
			sys.Handpiece.SetTrigger(pos)
			if !goutils.SelectContextOrWait(ctx, stepTime) {
				return
			}
		}
		sys.Inputs.SetEnable(false)
		select {
		case <-ctx.Done():
			return
		case <-clk.After(pause):
		}
	}
}

func parseCaptureAction(c *cli.Context, logger logging.Logger) error {
	if c.Args().Len() != 1 {
		return errors.New("expected exactly one capture file")
	}
	path := c.Args().First()
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(f.Close)

	datums, err := ftdc.ParseWithLogger(f, logger)
	if err != nil {
		return errors.Wrapf(err, "parsing %q", path)
	}
	w := c.App.Writer
	for _, datum := range datums {
		fmt.Fprintln(w, datum.ConvertedTime().Format(time.RFC3339Nano))
		for _, reading := range datum.Readings {
			fmt.Fprintf(w, "\t%s\t%v\n", reading.MetricName, reading.Value)
		}
	}
	fmt.Fprintf(w, "%d cycles\n", len(datums))
	return nil
}
