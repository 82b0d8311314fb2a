package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	envflags "github.com/goliatone/go-envflags"
)

const testDocument = `
active: Prod
features:
  - name: Logging
    symbols: [LOG_VERBOSE]
  - name: Analytics
    symbols: [ANALYTICS]
  - name: PostProcessing
    symbols: [UNITY_POST_PROCESSING]
defaults:
  log_level: warn
  analytics: false
environments:
  - name: Dev
    values:
      log_level: debug
  - name: Prod
    values:
      analytics: true
    flags:
      PostProcessing: true
rules:
  Logging: log_level == "debug"
  Analytics: analytics
`

func writeWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "envflags.yaml"), []byte(testDocument), 0o600); err != nil {
		t.Fatalf("write document: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "defines.txt"), []byte("FOREIGN\n"), 0o600); err != nil {
		t.Fatalf("write defines: %v", err)
	}
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--file", filepath.Join(dir, "envflags.yaml")}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func readDefines(t *testing.T, dir string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, "defines.txt"))
	if err != nil {
		t.Fatalf("read defines: %v", err)
	}
	return strings.TrimSpace(string(raw))
}

func TestApplySelectListRoundTrip(t *testing.T) {
	dir := writeWorkspace(t)

	out, err := run(t, dir, "apply")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(out, "Prod config applied") {
		t.Fatalf("unexpected apply output %q", out)
	}
	if got := readDefines(t, dir); got != "FOREIGN;ANALYTICS;UNITY_POST_PROCESSING" {
		t.Fatalf("unexpected defines after apply: %q", got)
	}

	if _, err := run(t, dir, "select", "Dev"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := readDefines(t, dir); got != "FOREIGN;LOG_VERBOSE" {
		t.Fatalf("unexpected defines after select: %q", got)
	}

	out, err = run(t, dir, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "* 0 Dev") || !strings.Contains(out, "  1 Prod") {
		t.Fatalf("expected persisted selection in list output, got %q", out)
	}

	out, err = run(t, dir, "apply")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !strings.Contains(out, "Dev config already up to date") {
		t.Fatalf("expected no-op apply, got %q", out)
	}
}

func TestSelectSavesSelectionWhenDefinesAlreadyMatch(t *testing.T) {
	dir := t.TempDir()
	doc := "features:\n  - name: Logging\n    symbols: [LOG_VERBOSE]\nenvironments:\n  - name: Dev\n    flags: {Logging: true}\n  - name: Staging\n    flags: {Logging: true}\n"
	if err := os.WriteFile(filepath.Join(dir, "envflags.yaml"), []byte(doc), 0o600); err != nil {
		t.Fatalf("write document: %v", err)
	}
	if _, err := run(t, dir, "apply"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	out, err := run(t, dir, "select", "Staging")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !strings.Contains(out, "Staging config already up to date") {
		t.Fatalf("expected no-op select, got %q", out)
	}
	out, err = run(t, dir, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "* 1 Staging") {
		t.Fatalf("expected Staging to stay selected, got %q", out)
	}
}

func TestApplyWithOverrides(t *testing.T) {
	dir := writeWorkspace(t)
	if _, err := run(t, dir, "select", "0"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := run(t, dir, "apply", "--set", "analytics=true"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := readDefines(t, dir); got != "FOREIGN;LOG_VERBOSE;ANALYTICS" {
		t.Fatalf("unexpected defines with override: %q", got)
	}
}

func TestSelectUnknownEnvironment(t *testing.T) {
	dir := writeWorkspace(t)
	_, err := run(t, dir, "select", "Staging")
	if !errors.Is(err, envflags.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
	_, err = run(t, dir, "select", "7")
	if !errors.Is(err, envflags.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound for index, got %v", err)
	}
	if got := readDefines(t, dir); got != "FOREIGN" {
		t.Fatalf("failed select must not touch defines, got %q", got)
	}
}

func TestExplainShowsProvenance(t *testing.T) {
	dir := writeWorkspace(t)
	out, err := run(t, dir, "explain", "Dev", "analytics")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if !strings.Contains(out, "analytics = false (from defaults)") {
		t.Fatalf("unexpected explain output %q", out)
	}

	out, err = run(t, dir, "--set", "analytics=true", "explain", "Dev", "analytics", "--json")
	if err != nil {
		t.Fatalf("explain json: %v", err)
	}
	if !strings.Contains(out, `"source": "override"`) {
		t.Fatalf("expected override in json output, got %q", out)
	}
}

func TestParseOverrides(t *testing.T) {
	values, err := parseOverrides([]string{"enabled=true", "retries=3", "name=eu-west"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if values["enabled"] != true || values["retries"] != 3 || values["name"] != "eu-west" {
		t.Fatalf("unexpected overrides %#v", values)
	}
	if _, err := parseOverrides([]string{"novalue"}); err == nil {
		t.Fatalf("expected error for missing '='")
	}
	if _, err := parseOverrides([]string{"=1"}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestWatchDocumentReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envflags.yaml")
	if err := os.WriteFile(path, []byte("features: []\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	reloaded := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- watchDocument(ctx, path, 10*time.Millisecond, func() error {
			select {
			case reloaded <- struct{}{}:
			default:
			}
			return nil
		}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for waiting := true; waiting; {
		select {
		case <-reloaded:
			waiting = false
		case <-tick.C:
			if err := os.WriteFile(path, []byte("features: []\nenvironments: []\n"), 0o600); err != nil {
				t.Fatalf("rewrite: %v", err)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reload")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch returned %v", err)
	}
}
