package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := map[string]bool{
		"serve":   false,
		"migrate": false,
		"ingest":  false,
		"version": false,
	}
	for _, sub := range rootCmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCommandOutput(t *testing.T) {
	origVersion := version
	version = "1.2.3"
	defer func() { version = origVersion }()

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	for _, want := range []string{"study-assistant 1.2.3", "Build Time:", "Git Commit:", "Go Version:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestIngestRequiresValidCourseID(t *testing.T) {
	origCourse := ingestCourseID
	ingestCourseID = "not-a-uuid"
	defer func() { ingestCourseID = origCourse }()

	err := runIngest(t.Context(), "testdata/nonexistent.txt")
	if err == nil {
		t.Fatal("expected error for invalid course ID")
	}
	if !strings.Contains(err.Error(), "invalid course ID") {
		t.Errorf("unexpected error: %v", err)
	}
}
