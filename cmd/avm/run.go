package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/chazu/avm2/manifest"
	"github.com/chazu/avm2/vm"
)

// runCommand processes `avm run`.
// Usage:
//
//	avm run                      # entry image of the nearest avm.toml
//	avm run -manifest dir        # manifest in dir
//	avm run -v 2 -frames 30 x.abc
func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	manifestDir := fs.String("manifest", "", "Directory holding avm.toml (default: search upwards from .)")
	verbosity := fs.Int("v", -1, "Log verbosity 0-4 (overrides [log] verbosity)")
	frames := fs.Int("frames", 0, "Frames to tick after the scripts run (0 ticks until interrupted while workers run)")
	fs.Parse(args)

	m, err := loadManifest(*manifestDir)
	if err != nil {
		return err
	}
	if *verbosity >= 0 {
		m.Log.Verbosity = *verbosity
	}
	m.ConfigureLogging()

	path := m.EntryPath()
	if fs.NArg() > 0 {
		if path, err = imageArg(fs); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	opts, st, err := m.Options()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	opts.Trace = os.Stdout

	machine, err := vm.New(opts)
	if err != nil {
		return err
	}
	if err := machine.LoadImageBytes(data); err != nil {
		return err
	}
	log.Infof("running %s", path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runErr := machine.RunScripts()
	if runErr == nil {
		runErr = tickLoop(ctx, machine, m.Player.FrameRate, *frames)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := machine.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %s", err)
	}
	return runErr
}

// tickLoop drives the frame loop. With frames > 0 it stops after that many
// frames; otherwise it runs while background workers are alive.
func tickLoop(ctx context.Context, machine *vm.VM, rate, frames int) error {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	for n := 0; frames <= 0 || n < frames; n++ {
		if frames <= 0 && !backgroundRunning(machine) {
			return nil
		}
		select {
		case <-ctx.Done():
			log.Info("interrupted")
			return nil
		case now := <-ticker.C:
			if err := machine.Tick(now); err != nil {
				return err
			}
		}
	}
	return nil
}

func backgroundRunning(machine *vm.VM) bool {
	for _, h := range machine.Registry().Running() {
		if !h.IsPrimordial() {
			return true
		}
	}
	return false
}

func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	if m == nil {
		return manifest.Default(), nil
	}
	return m, nil
}
