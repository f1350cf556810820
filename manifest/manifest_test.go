package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/avm2/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// unsetEnv clears the override variables for the duration of the test.
func unsetEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvLogVerbosity, EnvReceiveTimeout, EnvFrameRate} {
		if old, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, old) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
		os.Unsetenv(k)
	}
}

func TestLoadManifest(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
entry = "bin/game.abc"

[player]
frame-rate = 60
max-call-depth = 512

[workers]
receive-timeout = "2s"
max-workers = 4

[gc]
step-budget = 128
threshold = 1000

[storage]
shared-objects = ".avm/shared.db"

[log]
verbosity = 2
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "demo" {
		t.Errorf("project name = %q, want demo", m.Project.Name)
	}
	if m.EntryPath() != filepath.Join(m.Dir, "bin", "game.abc") {
		t.Errorf("entry path = %q", m.EntryPath())
	}
	if m.Player.FrameRate != 60 || m.Player.MaxCallDepth != 512 {
		t.Errorf("player = %+v, want frame-rate 60, max-call-depth 512", m.Player)
	}
	if m.Workers.ReceiveTimeout.Duration != 2*time.Second {
		t.Errorf("receive-timeout = %v, want 2s", m.Workers.ReceiveTimeout)
	}
	if m.Workers.MaxWorkers != 4 {
		t.Errorf("max-workers = %d, want 4", m.Workers.MaxWorkers)
	}
	if m.GC.StepBudget != 128 || m.GC.Threshold != 1000 {
		t.Errorf("gc = %+v, want step-budget 128, threshold 1000", m.GC)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}

	opts, st, err := m.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	defer st.Close()
	if opts.Store != st || st == nil {
		t.Error("Options did not open the shared object store")
	}
	if _, err := os.Stat(filepath.Join(dir, ".avm", "shared.db")); err != nil {
		t.Errorf("store file: %v", err)
	}
	if opts.FrameRate != 60 || opts.ReceiveTimeout != 2*time.Second || opts.GCThreshold != 1000 {
		t.Errorf("options = %+v", opts)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Entry != "main.abc" {
		t.Errorf("default entry = %q, want main.abc", m.Project.Entry)
	}
	if m.Player.FrameRate != vm.DefaultFrameRate {
		t.Errorf("default frame-rate = %d, want %d", m.Player.FrameRate, vm.DefaultFrameRate)
	}
	if m.Workers.ReceiveTimeout.Duration != vm.DefaultReceiveTimeout {
		t.Errorf("default receive-timeout = %v, want %v", m.Workers.ReceiveTimeout, vm.DefaultReceiveTimeout)
	}
	if m.SharedObjectsPath() != "" {
		t.Errorf("shared objects path = %q, want empty", m.SharedObjectsPath())
	}
	_, st, err := m.Options()
	if err != nil || st != nil {
		t.Errorf("Options() store = %v, %v; want nil, nil", st, err)
	}
}

func TestDefaultMatchesEmptyManifest(t *testing.T) {
	d := Default()
	if d.GC.StepBudget != vm.DefaultGCStepBudget || d.Workers.MaxWorkers != vm.DefaultMaxWorkers {
		t.Errorf("Default() = %+v", d)
	}
}

func TestLoadManifestRejectsInvalid(t *testing.T) {
	unsetEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{"unknown table", "[render]\nmode = \"gpu\"\n"},
		{"unknown key", "[player]\nframe-rate = 30\nvsync = true\n"},
		{"out of range", "[player]\nframe-rate = 0\n"},
		{"wrong type", "[workers]\nmax-workers = \"many\"\n"},
		{"bad duration", "[workers]\nreceive-timeout = \"soon\"\n"},
		{"bad entry", "[project]\nentry = \"main.swf\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			if _, err := Load(dir); err == nil {
				t.Errorf("Load accepted %q", tt.content)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	writeManifest(t, dir, "[player]\nframe-rate = 30\n")
	t.Setenv(EnvFrameRate, "12")
	t.Setenv(EnvReceiveTimeout, "250ms")
	t.Setenv(EnvLogVerbosity, "3")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Player.FrameRate != 12 {
		t.Errorf("frame-rate = %d, want 12", m.Player.FrameRate)
	}
	if m.Workers.ReceiveTimeout.Duration != 250*time.Millisecond {
		t.Errorf("receive-timeout = %v, want 250ms", m.Workers.ReceiveTimeout)
	}
	if m.Log.Verbosity != 3 {
		t.Errorf("verbosity = %d, want 3", m.Log.Verbosity)
	}

	t.Setenv(EnvFrameRate, "fast")
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), EnvFrameRate) {
		t.Errorf("Load with bad %s = %v, want an error naming it", EnvFrameRate, err)
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	writeManifest(t, dir, "[project]\nname = \"env\"\n")
	dotenv := EnvFrameRate + "=45\n" + EnvLogVerbosity + "=4\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvLogVerbosity, "1")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Player.FrameRate != 45 {
		t.Errorf("frame-rate = %d, want 45 from .env", m.Player.FrameRate)
	}
	if m.Log.Verbosity != 1 {
		t.Errorf("verbosity = %d, want the process value 1", m.Log.Verbosity)
	}
}

func TestFindAndLoad(t *testing.T) {
	unsetEnv(t)
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"walk\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil || m.Project.Name != "walk" {
		t.Fatalf("FindAndLoad = %+v, want the root manifest", m)
	}
}
