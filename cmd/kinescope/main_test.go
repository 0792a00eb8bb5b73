package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kinescope/internal/daemon"
	"kinescope/internal/recorder"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf("[paths]\nchunk_dir = %q\nlog_dir = %q\n",
		filepath.Join(base, "chunks"), filepath.Join(base, "logs"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func newStatusServer(t *testing.T, status daemon.Status) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			t.Errorf("encode status: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStatusCommandJSON(t *testing.T) {
	server := newStatusServer(t, daemon.Status{
		Running: true,
		Recorder: recorder.State{
			Phase:        recorder.PhaseRecording,
			DisplayCount: 2,
		},
		ChunkCount: 3,
		ChunkBytes: 4096,
	})

	out, err := runCommand(t, "status", "--json", "--api", server.URL, "--config", writeTestConfig(t))
	if err != nil {
		t.Fatalf("status command failed: %v", err)
	}

	var decoded daemon.Status
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode output: %v\noutput: %s", err, out)
	}
	if !decoded.Running || decoded.Recorder.Phase != recorder.PhaseRecording || decoded.ChunkCount != 3 {
		t.Fatalf("unexpected decoded status %+v", decoded)
	}
}

func TestStatusCommandPlainOutput(t *testing.T) {
	server := newStatusServer(t, daemon.Status{
		Running:  true,
		Recorder: recorder.State{Phase: recorder.PhaseIdle},
	})

	out, err := runCommand(t, "status", "--api", server.URL, "--config", writeTestConfig(t))
	if err != nil {
		t.Fatalf("status command failed: %v", err)
	}
	for _, want := range []string{"Recorder", "Phase", "Storage", "Chunks"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestStatusCommandDaemonUnreachable(t *testing.T) {
	_, err := runCommand(t, "status", "--api", "127.0.0.1:1", "--config", writeTestConfig(t))
	if err == nil {
		t.Fatal("expected error when the daemon API is unreachable")
	}
}

func TestCleanupCommandEmptyStore(t *testing.T) {
	out, err := runCommand(t, "cleanup", "--config", writeTestConfig(t))
	if err != nil {
		t.Fatalf("cleanup command failed: %v", err)
	}
	if !strings.Contains(out, "Deleted 0 of 0 expired chunks") {
		t.Fatalf("unexpected cleanup output: %s", out)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected init output to name %q, got: %s", target, out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config on disk: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, err := runCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite failed: %v", err)
	}

	out, err = runCommand(t, "config", "show", "--config", writeTestConfig(t))
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"[paths]", "chunk_dir", "[retention]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected config show output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"127.0.0.1:7460", "http://127.0.0.1:7460"},
		{":7460", "http://127.0.0.1:7460"},
		{"http://localhost:1/", "http://localhost:1"},
		{"https://host.example", "https://host.example"},
		{" 127.0.0.1:7460/ ", "http://127.0.0.1:7460"},
	}
	for _, tc := range cases {
		if got := normalizeBaseURL(tc.input); got != tc.want {
			t.Fatalf("normalizeBaseURL(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
