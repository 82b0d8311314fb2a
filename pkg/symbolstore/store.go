// Package symbolstore provides SymbolStore implementations: an in-memory set
// and a text file holding ';'-separated define symbols, the format build
// settings use for scripting defines.
package symbolstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	envflags "github.com/goliatone/go-envflags"
)

// Memory is a SymbolStore backed by a slice.
type Memory struct {
	mu      sync.Mutex
	symbols []string
	writes  int
}

// NewMemory returns a store seeded with symbols.
func NewMemory(symbols ...string) *Memory {
	return &Memory{symbols: envflags.NormalizeSymbols(symbols)}
}

func (m *Memory) ReadSymbols(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.symbols...), nil
}

func (m *Memory) WriteSymbols(ctx context.Context, symbols []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols = envflags.NormalizeSymbols(symbols)
	m.writes++
	return nil
}

// Writes returns how many times the set was written.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// File stores symbols as a single line of ';'-separated text. A missing file
// reads as an empty set.
type File struct {
	Path string
}

// NewFile returns a store for path.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) ReadSymbols(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbolstore: read %s: %w", f.Path, err)
	}
	return envflags.ParseSymbols(strings.TrimSpace(string(raw))), nil
}

// WriteSymbols replaces the file atomically.
func (f *File) WriteSymbols(ctx context.Context, symbols []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("symbolstore: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return fmt.Errorf("symbolstore: write %s: %w", f.Path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(envflags.FormatSymbols(symbols) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("symbolstore: write %s: %w", f.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("symbolstore: write %s: %w", f.Path, err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("symbolstore: write %s: %w", f.Path, err)
	}
	return nil
}

var (
	_ envflags.SymbolStore = (*Memory)(nil)
	_ envflags.SymbolStore = (*File)(nil)
)
