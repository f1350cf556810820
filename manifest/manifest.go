// Package manifest handles avm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/tliron/commonlog"

	"github.com/chazu/avm2/vm"
	"github.com/chazu/avm2/vm/store"
)

// FileName is the manifest file looked for in a project directory.
const FileName = "avm.toml"

var log = commonlog.GetLogger("avm2.manifest")

// Manifest represents an avm.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Player  Player  `toml:"player"`
	Workers Workers `toml:"workers"`
	GC      GC      `toml:"gc"`
	Storage Storage `toml:"storage"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the avm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// Player configures the frame loop and the interpreter.
type Player struct {
	FrameRate    int `toml:"frame-rate"`
	MaxCallDepth int `toml:"max-call-depth"`
}

// Workers configures background workers and blocking waits.
type Workers struct {
	ReceiveTimeout Duration `toml:"receive-timeout"`
	MaxWorkers     int      `toml:"max-workers"`
}

// GC configures the incremental collector.
type GC struct {
	StepBudget int `toml:"step-budget"`
	Threshold  int `toml:"threshold"`
}

// Storage configures SharedObject persistence. An empty path keeps shared
// objects in memory.
type Storage struct {
	SharedObjects string `toml:"shared-objects"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Duration is a time.Duration written as a Go duration string ("15s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a manifest holding only defaults.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Project.Entry == "" {
		m.Project.Entry = "main.abc"
	}
	if m.Player.FrameRate == 0 {
		m.Player.FrameRate = vm.DefaultFrameRate
	}
	if m.Player.MaxCallDepth == 0 {
		m.Player.MaxCallDepth = vm.DefaultMaxCallDepth
	}
	if m.Workers.ReceiveTimeout.Duration == 0 {
		m.Workers.ReceiveTimeout.Duration = vm.DefaultReceiveTimeout
	}
	if m.Workers.MaxWorkers == 0 {
		m.Workers.MaxWorkers = vm.DefaultMaxWorkers
	}
	if m.GC.StepBudget == 0 {
		m.GC.StepBudget = vm.DefaultGCStepBudget
	}
	if m.GC.Threshold == 0 {
		m.GC.Threshold = vm.DefaultGCThreshold
	}
}

// Load parses the avm.toml file in dir. A .env file next to it is loaded
// into the environment first, without replacing variables already set.
// The document is checked against the schema before defaults and AVM_*
// overrides are applied.
func Load(dir string) (*Manifest, error) {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", envPath, err)
		}
	}

	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	log.Debugf("loaded %s", path)
	return &m, nil
}

// FindAndLoad walks up from startDir to find an avm.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry image.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Project.Entry)
}

// SharedObjectsPath returns the absolute path of the SharedObject
// database, or "" when shared objects are not persisted.
func (m *Manifest) SharedObjectsPath() string {
	if m.Storage.SharedObjects == "" {
		return ""
	}
	return m.resolve(m.Storage.SharedObjects)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// Options returns the VM options the manifest describes. When storage is
// configured the SharedObject database is opened; the caller closes it.
func (m *Manifest) Options() (vm.Options, *store.Store, error) {
	opts := vm.Options{
		MaxCallDepth:   m.Player.MaxCallDepth,
		FrameRate:      m.Player.FrameRate,
		ReceiveTimeout: m.Workers.ReceiveTimeout.Duration,
		MaxWorkers:     m.Workers.MaxWorkers,
		GCStepBudget:   m.GC.StepBudget,
		GCThreshold:    m.GC.Threshold,
	}
	path := m.SharedObjectsPath()
	if path == "" {
		return opts, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return opts, nil, fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	st, err := store.Open(path)
	if err != nil {
		return opts, nil, err
	}
	opts.Store = st
	return opts, st, nil
}

// ConfigureLogging applies the [log] table to commonlog.
func (m *Manifest) ConfigureLogging() {
	var path *string
	if m.Log.File != "" {
		p := m.resolve(m.Log.File)
		path = &p
	}
	commonlog.Configure(m.Log.Verbosity, path)
}
