package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/tspanneal/internal/cities"
	"github.com/cwbudde/tspanneal/internal/config"
	"github.com/cwbudde/tspanneal/internal/opt"
	"github.com/cwbudde/tspanneal/internal/report"
	"github.com/cwbudde/tspanneal/internal/store"
	"github.com/cwbudde/tspanneal/internal/tour"
	"github.com/spf13/pflag"
)

func writeRectangle(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rectangle.txt")
	if err := os.WriteFile(path, []byte("0 0\n0 3\n4 3\n4 0\n"), 0644); err != nil {
		t.Fatalf("Failed to write cities: %v", err)
	}
	return path
}

func rectangleRun(t *testing.T) config.Run {
	cfg := config.Defaults()
	cfg.CitiesPath = writeRectangle(t)
	cfg.Seed = 42
	cfg.ReportEvery = 0
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestExecuteRun_Text(t *testing.T) {
	var out bytes.Buffer
	res, err := executeRun(context.Background(), rectangleRun(t), false, &out)
	if err != nil {
		t.Fatalf("executeRun failed: %v", err)
	}

	if res.Cost > 14+1e-6 {
		t.Errorf("Expected cost 14, got %f", res.Cost)
	}
	if err := res.Tour.Validate(4); err != nil {
		t.Errorf("Result is not a permutation: %v", err)
	}

	lines := strings.Split(out.String(), "\n")
	if len(lines) != 3 || lines[2] != "" {
		t.Fatalf("Expected two report lines, got %q", out.String())
	}
	if len(strings.Fields(lines[0])) != 4 || !strings.HasSuffix(lines[0], " ") {
		t.Errorf("Unexpected tour line %q", lines[0])
	}
	if lines[1] != "Total Cost: 14" {
		t.Errorf("Unexpected cost line %q", lines[1])
	}
}

func TestExecuteRun_Deterministic(t *testing.T) {
	cfg := rectangleRun(t)
	var a, b bytes.Buffer
	if _, err := executeRun(context.Background(), cfg, false, &a); err != nil {
		t.Fatal(err)
	}
	if _, err := executeRun(context.Background(), cfg, false, &b); err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Errorf("Same seed should produce the same report:\n%s\n%s", a.String(), b.String())
	}
}

func TestExecuteRun_JSONToFile(t *testing.T) {
	cfg := rectangleRun(t)
	cfg.Format = "json"
	cfg.Output = filepath.Join(t.TempDir(), "tour.json")

	var stdout bytes.Buffer
	res, err := executeRun(context.Background(), cfg, false, &stdout)
	if err != nil {
		t.Fatalf("executeRun failed: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("Nothing should be written to stdout with --out, got %q", stdout.String())
	}

	data, err := os.ReadFile(cfg.Output)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	var doc report.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Output is not JSON: %v", err)
	}
	if doc.Cost != res.Cost {
		t.Errorf("Expected cost %f, got %f", res.Cost, doc.Cost)
	}
}

func TestExecuteRun_OutputFailure(t *testing.T) {
	cfg := rectangleRun(t)
	cfg.Output = filepath.Join(t.TempDir(), "missing-dir", "tour.txt")

	_, err := executeRun(context.Background(), cfg, false, &bytes.Buffer{})
	if !errors.Is(err, report.ErrOutputFailure) {
		t.Errorf("Expected ErrOutputFailure, got %v", err)
	}
}

func TestExecuteRun_MissingCities(t *testing.T) {
	cfg := rectangleRun(t)
	cfg.CitiesPath = filepath.Join(t.TempDir(), "missing.txt")

	_, err := executeRun(context.Background(), cfg, false, &bytes.Buffer{})
	if !errors.Is(err, cities.ErrInputUnavailable) {
		t.Errorf("Expected ErrInputUnavailable, got %v", err)
	}
}

func TestExecuteRun_SaveAndResume(t *testing.T) {
	cfg := rectangleRun(t)
	cfg.MaxIterations = 50
	cfg.ReportEvery = 10

	if _, err := executeRun(context.Background(), cfg, true, &bytes.Buffer{}); err != nil {
		t.Fatalf("executeRun failed: %v", err)
	}

	fsStore, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	infos, err := fsStore.ListCheckpoints()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("Expected one saved checkpoint, got %d", len(infos))
	}
	jobID := infos[0].JobID

	checkpoint, err := fsStore.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatal(err)
	}
	if checkpoint.Config.Seed != 42 || checkpoint.CityCount != 4 {
		t.Errorf("Unexpected checkpoint: %+v", checkpoint)
	}

	if _, err := os.Stat(filepath.Join(cfg.DataDir, "jobs", jobID, "tour.txt")); err != nil {
		t.Errorf("tour.txt should be saved: %v", err)
	}
	entries, err := fsStore.LoadTrace(jobID)
	if err != nil || len(entries) != 5 {
		t.Errorf("Expected 5 trace entries, got %d (%v)", len(entries), err)
	}

	// A resumed run never ends worse than the checkpoint it starts from
	resumed := cfg
	resumed.Resume = jobID
	resumed.MaxIterations = 10000
	res, err := executeRun(context.Background(), resumed, false, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if res.InitialCost != checkpoint.BestCost {
		t.Errorf("Resumed run should start at the checkpoint cost %f, got %f", checkpoint.BestCost, res.InitialCost)
	}
	if res.Cost > checkpoint.BestCost {
		t.Errorf("Resumed cost %f worse than checkpoint %f", res.Cost, checkpoint.BestCost)
	}
}

func TestExecuteRun_SaveWithoutReporting(t *testing.T) {
	cfg := rectangleRun(t)
	cfg.MaxIterations = 40
	cfg.ReportEvery = 0

	res, err := executeRun(context.Background(), cfg, true, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("executeRun failed: %v", err)
	}

	fsStore, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	infos, err := fsStore.ListCheckpoints()
	if err != nil || len(infos) != 1 {
		t.Fatalf("Expected one saved checkpoint, got %d (%v)", len(infos), err)
	}

	entries, err := fsStore.LoadTrace(infos[0].JobID)
	if err != nil {
		t.Fatalf("Trace should be saved: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected only the final snapshot, got %d entries", len(entries))
	}
	if entries[0].Iteration != 40 || entries[0].Cost != res.Cost {
		t.Errorf("Final entry should match the result, got %+v", entries[0])
	}
}

func TestExecuteRun_SkipsNonFiniteCities(t *testing.T) {
	cfg := rectangleRun(t)
	path := filepath.Join(t.TempDir(), "cities.txt")
	if err := os.WriteFile(path, []byte("0 0\n0 3\nNaN 2\n4 3\n1 Inf\n4 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.CitiesPath = path

	var out bytes.Buffer
	res, err := executeRun(context.Background(), cfg, false, &out)
	if err != nil {
		t.Fatalf("executeRun failed: %v", err)
	}
	if len(res.Tour) != 4 {
		t.Errorf("Non-finite cities should be skipped, got tour %v", res.Tour)
	}
	if !strings.HasSuffix(out.String(), "Total Cost: 14\n") {
		t.Errorf("Unexpected report %q", out.String())
	}

	cfg.Format = "json"
	out.Reset()
	if _, err := executeRun(context.Background(), cfg, false, &out); err != nil {
		t.Fatalf("JSON report should encode: %v", err)
	}
}

func TestExecuteRun_ResumeIncompatible(t *testing.T) {
	cfg := rectangleRun(t)
	fsStore, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}

	checkpoint := store.NewCheckpoint("other", []int{0, 1, 2}, 3, 3, 10, 1, store.JobConfig{
		CitiesPath: cfg.CitiesPath,
		Iters:      10,
	})
	if err := fsStore.SaveCheckpoint("other", checkpoint); err != nil {
		t.Fatal(err)
	}

	cfg.Resume = "other"
	_, err = executeRun(context.Background(), cfg, false, &bytes.Buffer{})
	var cErr *store.CompatibilityError
	if !errors.As(err, &cErr) {
		t.Fatalf("Expected CompatibilityError, got %v", err)
	}
	if cErr.Field != "CityCount" {
		t.Errorf("Expected CityCount mismatch, got %s", cErr.Field)
	}
}

func TestExecuteRun_ResumeMissing(t *testing.T) {
	cfg := rectangleRun(t)
	cfg.Resume = "nope"

	_, err := executeRun(context.Background(), cfg, false, &bytes.Buffer{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRunFlags_Resolve(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "run.yaml")
	content := "cities: from-file.txt\nmaxIterations: 500\ncoolingRate: 0.95\nrestarts: 2\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	var f runFlags
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	addRunFlags(fs, &f)
	if err := fs.Parse([]string{"--config", configPath, "--iters", "700", "--seed", "9"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := f.resolve(fs, nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if cfg.CitiesPath != "from-file.txt" {
		t.Errorf("Expected cities from file, got %s", cfg.CitiesPath)
	}
	if cfg.MaxIterations != 700 {
		t.Errorf("Flag should override file iterations, got %d", cfg.MaxIterations)
	}
	if cfg.CoolingRate != 0.95 {
		t.Errorf("File cooling rate should survive unset flag, got %f", cfg.CoolingRate)
	}
	if cfg.InitialTemperature != 1000 {
		t.Errorf("Default temperature expected, got %f", cfg.InitialTemperature)
	}
	if cfg.Restarts != 2 || cfg.Seed != 9 {
		t.Errorf("Unexpected restarts/seed: %d/%d", cfg.Restarts, cfg.Seed)
	}
}

func TestRunFlags_ResolveArgumentAndValidation(t *testing.T) {
	var f runFlags
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	addRunFlags(fs, &f)
	if err := fs.Parse([]string{"--cooling", "1.5"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := f.resolve(fs, []string{"cities.txt"})
	if cfg.CitiesPath != "cities.txt" {
		t.Errorf("Positional argument should set the cities path, got %q", cfg.CitiesPath)
	}
	if err == nil || !strings.Contains(err.Error(), "coolingRate") {
		t.Errorf("Expected cooling rate validation error, got %v", err)
	}

	var g runFlags
	fs = pflag.NewFlagSet("run", pflag.ContinueOnError)
	addRunFlags(fs, &g)
	if _, err := g.resolve(fs, nil); err == nil {
		t.Error("Expected error without a cities file")
	}
}

func TestWriteReport_Stdout(t *testing.T) {
	var out bytes.Buffer
	res := &opt.Result{Tour: tour.Tour{1, 0}, Cost: 10}
	if err := writeReport("", &out, report.FormatText, res); err != nil {
		t.Fatal(err)
	}
	if out.String() != "1 0 \nTotal Cost: 10\n" {
		t.Errorf("Unexpected report %q", out.String())
	}
}
