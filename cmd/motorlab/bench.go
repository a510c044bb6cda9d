package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"motorlab/config"
	"motorlab/core"
	"motorlab/host/periph"
	"motorlab/settings"
	"motorlab/sim"
	"motorlab/trial"
)

// bench owns everything a local console needs
type bench struct {
	robot    *trial.Robot
	settings *settings.Settings
	store    settings.Store

	board  *periph.Board
	cancel context.CancelFunc
	done   chan error
}

func openBench(ctx context.Context, cfg *config.Config) (*bench, error) {
	store, err := settings.OpenStorm(cfg.Settings)
	if err != nil {
		return nil, err
	}
	b := &bench{store: store, settings: settings.New(cfg.Calibration(), store)}
	switch err := b.settings.Read(); {
	case err == nil:
		log.Info().Str("path", cfg.Settings).Msg("loaded settings")
	case errors.Is(err, settings.ErrNoSettings):
		log.Info().Str("path", cfg.Settings).Msg("no stored settings, using defaults")
	default:
		log.Warn().Err(err).Msg("stored settings rejected, using defaults")
		b.settings.Init()
	}

	if cfg.Sim {
		err = b.openSim(cfg)
	} else {
		err = b.openBoard(ctx, cfg)
	}
	if err != nil {
		return nil, multierr.Append(err, store.Close())
	}
	return b, nil
}

func simConfig(cfg *config.Config) sim.Config {
	sc := sim.DefaultConfig()
	sc.Km = float64(cfg.Plant.Km)
	sc.Tm = float64(cfg.Plant.Tm)
	sc.FrictionVolts = float64(cfg.Plant.FrictionVolts)
	sc.BatteryVolts = float64(cfg.Plant.BatteryVolts)
	sc.Substeps = cfg.Plant.Substeps
	sc.Realtime = cfg.Plant.Realtime
	sc.DegPerCount = 360.0 / (float64(cfg.Drivetrain.EncoderPulses) * float64(cfg.Drivetrain.GearRatio))
	sc.MotorPolarity = cfg.Drivetrain.MotorPolarity
	sc.EncoderPolarity = cfg.Drivetrain.EncoderPolarity
	sc.XORClock = cfg.Drivetrain.XORClock
	sc.ReferenceMV = cfg.Battery.ReferenceMV
	sc.DividerRatio = float64(cfg.Battery.DividerRatio())
	return sc
}

// openSim wires the simulated rig. Trials step the rig in lockstep.
func (b *bench) openSim(cfg *config.Config) error {
	rig := sim.New(simConfig(cfg))
	battery := core.NewBattery(rig, sim.BatteryChannel, cfg.Battery.ReferenceMV,
		cfg.Battery.DividerRatio(), cfg.Battery.Window)
	if err := battery.Configure(); err != nil {
		return fmt.Errorf("battery: %w", err)
	}

	axis, err := core.NewAxis(rig.AxisConfig(b.settings.Calibration(), battery))
	if err != nil {
		return err
	}
	battery.Schedule(axis.Scheduler, rig.Now())
	b.robot = trial.NewRobot(axis, core.NewLockstep(axis.Scheduler, rig), nil, options(cfg))
	return nil
}

// openBoard wires Linux GPIO and runs the control loop in the background
func (b *bench) openBoard(ctx context.Context, cfg *config.Config) error {
	board, err := periph.Open(cfg.Pins)
	if err != nil {
		return err
	}
	volts := cfg.Battery.FixedVolts
	if volts <= 0 {
		volts = cfg.Plant.BatteryVolts
	}

	axis, err := core.NewAxis(board.AxisConfig(cfg, b.settings.Calibration(), core.FixedBattery(volts)))
	if err != nil {
		return multierr.Append(err, board.Close())
	}
	b.board = board

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan error, 1)
	go func() {
		b.done <- axis.Scheduler.Run(runCtx, core.NewSystemClock())
	}()
	b.robot = trial.NewRobot(axis, axis.Scheduler, nil, options(cfg))
	return nil
}

func options(cfg *config.Config) trial.Options {
	return trial.Options{
		ReportTicks: cfg.ReportTicks(),
		MaxDuration: time.Duration(cfg.MaxTrialSeconds * float64(time.Second)),
		MaxVolts:    cfg.Drivetrain.MaxMotorVolts,
	}
}

// Close stops the drive and releases the store and hardware
func (b *bench) Close() error {
	b.robot.DisableDrive()
	var err error
	if b.cancel != nil {
		b.cancel()
		if runErr := <-b.done; !errors.Is(runErr, context.Canceled) {
			err = multierr.Append(err, runErr)
		}
	}
	if b.board != nil {
		err = multierr.Append(err, b.board.Close())
	}
	return multierr.Append(err, b.store.Close())
}
