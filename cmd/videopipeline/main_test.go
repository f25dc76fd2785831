package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blackstreet-ai/animated-invention/internal/agents"
	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

func writeDefinition(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runMain(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeSnapshot(t *testing.T, out string) domain.Snapshot {
	t.Helper()
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("stdout is not a snapshot: %v\n%s", err, out)
	}
	return snap
}

func TestRun_ExitCodes(t *testing.T) {
	unknownAgent := writeDefinition(t, "unknown.yml", `
units:
  - name: research
  - name: narrate
    agent: narrator
`)
	cyclic := writeDefinition(t, "cycle.yml", `
units:
  - name: a
    agent: research
    depends_on: [b]
  - name: b
    agent: scriptwriter
    depends_on: [a]
`)
	broken := writeDefinition(t, "broken.yml", "units: [\n")
	failing := writeDefinition(t, "qc.hcl", `unit "quality_control" {}`)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "help", args: []string{"--help"}, want: exitOK},
		{name: "unknown flag", args: []string{"--bogus"}, want: exitUsage},
		{name: "stray argument", args: []string{"extra"}, want: exitUsage},
		{name: "unknown agent", args: []string{"--config", unknownAgent}, want: exitUsage},
		{name: "cycle", args: []string{"--config", cyclic}, want: exitUsage},
		{name: "unparsable definition", args: []string{"--config", broken}, want: exitUsage},
		{name: "unit fails", args: []string{"--config", failing}, want: exitAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runMain(t, tt.args...)
			if code != tt.want {
				t.Errorf("run() = %d, want %d\nstderr: %s", code, tt.want, stderr)
			}
		})
	}
}

func TestRun_OneShot(t *testing.T) {
	code, stdout, stderr := runMain(t, "--config", "../../configs/default.yml", "--topic", "The history of tea")
	if code != exitOK {
		t.Fatalf("run() = %d, want %d\nstderr: %s", code, exitOK, stderr)
	}

	snap := decodeSnapshot(t, stdout)
	if snap.Phase != domain.PhaseDone {
		t.Fatalf("phase = %s, want %s", snap.Phase, domain.PhaseDone)
	}
	wantLayers := [][]string{
		{"research"},
		{"scriptwriter"},
		{"visual", "audio"},
		{"editor"},
		{"quality_control"},
	}
	if diff := cmp.Diff(wantLayers, snap.Layers); diff != "" {
		t.Errorf("layers mismatch (-want +got):\n%s", diff)
	}
	if got := snap.Inputs[agents.InputTopic]; got != "The history of tea" {
		t.Errorf("topic input = %v", got)
	}
	if got := snap.Metadata[agents.MetaQCPassed]; got != true {
		t.Errorf("qc_passed = %v, want true", got)
	}
}

func TestRun_DiscoverTopics(t *testing.T) {
	code, stdout, stderr := runMain(t,
		"--config", "../../configs/default.yml",
		"--discover-topics",
		"--competitors", "chan-a, chan-b",
		"--audience", "students")
	if code != exitOK {
		t.Fatalf("run() = %d\nstderr: %s", code, stderr)
	}

	snap := decodeSnapshot(t, stdout)
	if len(snap.Layers) == 0 || !cmp.Equal(snap.Layers[0], []string{agents.KindTopicGeneration}) {
		t.Fatalf("first layer = %v, want topic generation", snap.Layers)
	}
	if _, ok := snap.Metadata[agents.MetaTopicRecommendations]; !ok {
		t.Error("topic recommendations missing from metadata")
	}
}

func TestRun_MissingDefinitionFallsBack(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yml")

	code, stdout, stderr := runMain(t, "--config", missing, "--topic", "bees")
	if code != exitOK {
		t.Fatalf("run() = %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "pipeline definition not found") {
		t.Errorf("stderr lacks fallback warning:\n%s", stderr)
	}
	if snap := decodeSnapshot(t, stdout); snap.Phase != domain.PhaseDone {
		t.Errorf("phase = %s, want %s", snap.Phase, domain.PhaseDone)
	}
}

func TestRun_InvalidEnvironment(t *testing.T) {
	t.Setenv("ORCH_MAX_RETRIES", "0")

	code, _, stderr := runMain(t)
	if code != exitUsage {
		t.Errorf("run() = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr, "Failed to load config") {
		t.Errorf("stderr = %q", stderr)
	}
}
