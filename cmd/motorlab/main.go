// Command motorlab runs the motor characterisation bench: a console over the
// trial commands, backed by the simulator, Linux GPIO, or a remote board.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"motorlab/cli"
	"motorlab/config"
	"motorlab/core"
	"motorlab/host/mcu"
	"motorlab/host/serial"
)

var (
	configPath = flag.String("config", "", "YAML rig configuration")
	simulate   = flag.Bool("sim", false, "Use the simulated rig")
	serialDev  = flag.String("serial", "", "Serve the console on this serial device instead of the terminal")
	remoteDev  = flag.String("remote", "", "Drive a motorlab board on this serial device")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *simulate {
		cfg.Sim = true
	}
	if *serialDev != "" {
		cfg.Serial = *serialDev
	}
	setupLogging(cfg.LogLevel, *verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *remoteDev != "" {
		err = runRemote(ctx, *remoteDev, cfg.Baud)
	} else {
		err = runLocal(ctx, cfg)
	}
	if err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("motorlab stopped")
	}
	log.Info().Msg("bye")
}

func setupLogging(level string, verbose bool) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	core.SetDebugWriter(func(s string) {
		log.Debug().Str("src", "core").Msg(strings.TrimRight(s, "\n"))
	})
	core.SetDebugEnabled(lvl <= zerolog.DebugLevel)
}

func runLocal(ctx context.Context, cfg *config.Config) error {
	b, err := openBench(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	if cfg.Serial == "" {
		in := cli.NewInterpreter(b.robot, b.settings, os.Stdout)
		log.Info().Bool("sim", cfg.Sim).Msg("bench ready")
		sh := in.Shell(ctx)
		go func() {
			<-ctx.Done()
			sh.Close()
		}()
		sh.Run()
		return nil
	}

	scfg := serial.DefaultConfig(cfg.Serial)
	scfg.Baud = cfg.Baud
	port, err := serial.Open(scfg)
	if err != nil {
		return fmt.Errorf("open console: %w", err)
	}
	defer port.Close()

	in := cli.NewInterpreter(b.robot, b.settings, port)
	log.Info().Str("device", cfg.Serial).Bool("sim", cfg.Sim).Msg("serving console")
	return serial.Serve(ctx, port, in, func(err error) {
		log.Warn().Err(err).Msg("command failed")
	})
}

// runRemote forwards terminal lines to a board and prints its replies
func runRemote(ctx context.Context, device string, baud int) error {
	m := mcu.NewMCU()
	scfg := serial.DefaultConfig(device)
	scfg.Baud = baud

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := m.ConnectWithConfig(connectCtx, scfg)
	cancel()
	if err != nil {
		return err
	}
	defer m.Close()
	log.Info().Str("device", device).Str("identity", m.Identity()).Msg("connected")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		}

		// trials run up to their own bound on the board
		cmdCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := m.Command(cmdCtx, line, os.Stdout)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("command", line).Msg("no reply")
		}
	}
}
