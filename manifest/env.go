package manifest

import (
	"fmt"
	"strconv"
	"time"
)

// Environment variables that override manifest settings.
const (
	EnvLogVerbosity   = "AVM_LOG_VERBOSITY"
	EnvReceiveTimeout = "AVM_RECEIVE_TIMEOUT"
	EnvFrameRate      = "AVM_FRAME_RATE"
)

// applyEnv overrides settings from the environment. lookup is
// os.LookupEnv outside tests.
func (m *Manifest) applyEnv(lookup func(string) (string, bool)) error {
	if s, ok := lookup(EnvLogVerbosity); ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogVerbosity, err)
		}
		m.Log.Verbosity = n
	}
	if s, ok := lookup(EnvReceiveTimeout); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReceiveTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s: must be positive, got %s", EnvReceiveTimeout, s)
		}
		m.Workers.ReceiveTimeout.Duration = d
	}
	if s, ok := lookup(EnvFrameRate); ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFrameRate, err)
		}
		if n < 1 {
			return fmt.Errorf("%s: must be at least 1, got %d", EnvFrameRate, n)
		}
		m.Player.FrameRate = n
	}
	return nil
}
