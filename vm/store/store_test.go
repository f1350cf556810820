package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "so", "shared.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Load(ctx, "prefs"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load missing = %v, want ErrNotFound", err)
	}
	if err := s.Save(ctx, "prefs", []byte{1, 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "prefs", []byte{3}); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, err := s.Load(ctx, "prefs")
	if err != nil || len(got) != 1 || got[0] != 3 {
		t.Errorf("Load = %v, %v; want [3]", got, err)
	}
	names, _ := s.Names(ctx)
	if len(names) != 1 || names[0] != "prefs" {
		t.Errorf("Names = %v", names)
	}
	if err := s.Delete(ctx, "prefs"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, "prefs"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete = %v", err)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Save(ctx, "k", []byte("v"))
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Load(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("Load = %q, %v", got, err)
	}
}
