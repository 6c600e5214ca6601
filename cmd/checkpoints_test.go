package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/tspanneal/internal/store"
)

func newCheckpointStore(t *testing.T) *store.FSStore {
	t.Helper()
	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return st
}

// saveRectangle stores a checkpoint of the 4x3 rectangle, optimal at cost 14.
func saveRectangle(t *testing.T, st *store.FSStore, jobID string, saved time.Time) {
	t.Helper()
	config := store.JobConfig{
		CitiesPath:         "rectangle.txt",
		Iters:              100,
		InitialTemperature: 1000,
		CoolingRate:        0.99,
		Restarts:           1,
		Seed:               42,
	}
	checkpoint := store.NewCheckpoint(jobID, []int{0, 1, 2, 3}, 14, 20, 100, 3.7, config)
	checkpoint.CityCount = 4
	checkpoint.Timestamp = saved
	if err := st.SaveCheckpoint(jobID, checkpoint); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}
}

func TestRetention_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	doomed := retention{olderThan: 7}.selectForDeletion(infos, now)

	if len(doomed) != 2 || doomed[0].JobID != "job4" || doomed[1].JobID != "job1" {
		t.Errorf("Expected job4 and job1, got %+v", doomed)
	}
}

func TestRetention_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	doomed := retention{keepLast: 2}.selectForDeletion(infos, now)

	if len(doomed) != 2 || doomed[0].JobID != "job4" || doomed[1].JobID != "job1" {
		t.Errorf("Expected the two oldest, got %+v", doomed)
	}
}

func TestRetention_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
		{JobID: "job5", Timestamp: now.AddDate(0, 0, -2)},
	}

	// Both rules pick job4 and job1; each is listed once
	doomed := retention{keepLast: 3, olderThan: 7}.selectForDeletion(infos, now)
	if len(doomed) != 2 {
		t.Errorf("Expected 2 checkpoints to delete, got %d", len(doomed))
	}

	doomed = retention{keepLast: 2, olderThan: 7}.selectForDeletion(infos, now)
	if len(doomed) != 3 || doomed[2].JobID != "job2" {
		t.Errorf("Expected job4, job1 and job2, got %+v", doomed)
	}
}

func TestRetention_KeepLastNotExceeded(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -2)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -1)},
	}

	if doomed := (retention{keepLast: 5}).selectForDeletion(infos, now); len(doomed) != 0 {
		t.Errorf("Expected nothing to delete, got %d", len(doomed))
	}
}

func TestJobDirSize(t *testing.T) {
	dir := t.TempDir()
	content := []byte("0 0\n0 3\n4 3\n4 0\n")
	if err := os.WriteFile(filepath.Join(dir, "cities.txt"), content, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "tour.txt"), content, 0644); err != nil {
		t.Fatal(err)
	}

	size, err := jobDirSize(dir)
	if err != nil {
		t.Fatalf("jobDirSize failed: %v", err)
	}
	if size != int64(2*len(content)) {
		t.Errorf("Expected %d bytes, got %d", 2*len(content), size)
	}

	if _, err := jobDirSize(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected an error for a missing directory")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if result := formatBytes(tt.bytes); result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestListCheckpoints_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := listCheckpoints(&out, newCheckpointStore(t)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.String() != "No checkpoints found.\n" {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestListCheckpoints_ShowsCostReduction(t *testing.T) {
	st := newCheckpointStore(t)
	saveRectangle(t, st, "older-job", time.Now().Add(-time.Hour))
	saveRectangle(t, st, "newer-job", time.Now())

	var out bytes.Buffer
	if err := listCheckpoints(&out, st); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	lines := strings.Split(out.String(), "\n")
	if !strings.HasPrefix(lines[0], "JOB ID") || !strings.Contains(lines[0], "GAIN") {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "newer-job") || !strings.HasPrefix(lines[2], "older-job") {
		t.Errorf("Expected newest first, got %q", out.String())
	}
	for _, want := range []string{"20.0000", "14.0000", "30.0%"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("Row %q should contain %s", lines[1], want)
		}
	}
	if !strings.HasSuffix(out.String(), "\n2 checkpoint(s)\n") {
		t.Errorf("Missing total in %q", out.String())
	}
}

func TestShowCheckpoint(t *testing.T) {
	st := newCheckpointStore(t)
	saveRectangle(t, st, "job", time.Now())

	tw, err := store.NewTraceWriter(st.BaseDir(), "job", false)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []store.TraceEntry{
		{Iteration: 10, Cost: 20, Temperature: 900},
		{Iteration: 20, Cost: 16, Temperature: 800},
		{Iteration: 30, Cost: 16, Temperature: 700},
		{Iteration: 40, Cost: 14, Temperature: 600},
	} {
		if err := tw.Write(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := showCheckpoint(&out, st, "job"); err != nil {
		t.Fatalf("showCheckpoint failed: %v", err)
	}
	got := out.String()

	for _, want := range []string{
		"Cities:      rectangle.txt (4)",
		"seed=42",
		"Cost:        20.0000 -> 14.0000 (30.0% shorter)",
		"0 1 2 3 \nTotal Cost: 14\n",
		"Improvements (3 of 4 samples):",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Output should contain %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "700") {
		t.Errorf("Samples without improvement should be left out:\n%s", got)
	}
}

func TestShowCheckpoint_WithoutTrace(t *testing.T) {
	st := newCheckpointStore(t)
	saveRectangle(t, st, "job", time.Now())

	var out bytes.Buffer
	if err := showCheckpoint(&out, st, "job"); err != nil {
		t.Fatalf("showCheckpoint failed: %v", err)
	}
	if !strings.HasSuffix(out.String(), "No trace recorded.\n") {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestShowCheckpoint_Missing(t *testing.T) {
	err := showCheckpoint(&bytes.Buffer{}, newCheckpointStore(t), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCleanCheckpoints_NoPolicy(t *testing.T) {
	err := cleanCheckpoints(&bytes.Buffer{}, strings.NewReader(""), newCheckpointStore(t), retention{}, true)
	if err == nil {
		t.Error("Expected error when no rule is given")
	}
}

func TestCleanCheckpoints_Force(t *testing.T) {
	st := newCheckpointStore(t)
	saveRectangle(t, st, "old-job", time.Now().AddDate(0, 0, -30))
	saveRectangle(t, st, "new-job", time.Now())

	var out bytes.Buffer
	if err := cleanCheckpoints(&out, strings.NewReader(""), st, retention{olderThan: 7}, true); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := st.LoadCheckpoint("old-job"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected old-job to be deleted, got %v", err)
	}
	if _, err := st.LoadCheckpoint("new-job"); err != nil {
		t.Errorf("new-job should survive: %v", err)
	}
	if !strings.Contains(out.String(), "Deleted 1 checkpoint(s), 0 failed.") {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestCleanCheckpoints_Confirmation(t *testing.T) {
	st := newCheckpointStore(t)
	saveRectangle(t, st, "old-job", time.Now().AddDate(0, 0, -30))

	var out bytes.Buffer
	if err := cleanCheckpoints(&out, strings.NewReader("n\n"), st, retention{olderThan: 7}, false); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out.String(), "Aborted.\n") {
		t.Errorf("Expected abort, got %q", out.String())
	}
	if _, err := st.LoadCheckpoint("old-job"); err != nil {
		t.Errorf("Declined deletion should keep the checkpoint: %v", err)
	}

	out.Reset()
	if err := cleanCheckpoints(&out, strings.NewReader("y\n"), st, retention{olderThan: 7}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadCheckpoint("old-job"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Confirmed deletion should remove the checkpoint, got %v", err)
	}
}
