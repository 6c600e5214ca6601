package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cwbudde/tspanneal/internal/opt"
	"gopkg.in/yaml.v3"
)

func smallTuneConfig() opt.TuneConfig {
	cfg := opt.DefaultTuneConfig()
	cfg.TrialIterations = 200
	cfg.Trials = 1
	return cfg
}

func TestExecuteTune(t *testing.T) {
	path := writeRectangle(t)
	cfg := smallTuneConfig()

	var out bytes.Buffer
	res, err := executeTune(path, cfg, 2, 20, 42, &out)
	if err != nil {
		t.Fatalf("executeTune failed: %v", err)
	}

	if res.Evaluations == 0 {
		t.Error("Expected at least one evaluation")
	}
	const slack = 1e-9
	if res.Params.InitialTemperature < cfg.MinTemperature*(1-slack) || res.Params.InitialTemperature > cfg.MaxTemperature*(1+slack) {
		t.Errorf("Temperature %g outside search box", res.Params.InitialTemperature)
	}
	if res.Params.CoolingRate < cfg.MinCoolingRate-slack || res.Params.CoolingRate > cfg.MaxCoolingRate+slack {
		t.Errorf("Cooling rate %g outside search box", res.Params.CoolingRate)
	}

	var schedule tunedSchedule
	if err := yaml.Unmarshal(out.Bytes(), &schedule); err != nil {
		t.Fatalf("Output is not YAML: %v\n%s", err, out.String())
	}
	if schedule.InitialTemperature != res.Params.InitialTemperature {
		t.Errorf("YAML temperature %g, result %g", schedule.InitialTemperature, res.Params.InitialTemperature)
	}
	if schedule.CoolingRate != res.Params.CoolingRate {
		t.Errorf("YAML cooling rate %g, result %g", schedule.CoolingRate, res.Params.CoolingRate)
	}
	if !strings.Contains(out.String(), "initialTemperature:") || !strings.Contains(out.String(), "coolingRate:") {
		t.Errorf("Output keys should match the run file: %q", out.String())
	}
}

func TestExecuteTune_InvalidArguments(t *testing.T) {
	path := writeRectangle(t)

	tests := []struct {
		name    string
		iters   int
		pop     int
		wantErr string
	}{
		{"small population", 5, 10, "population size must be at least 20"},
		{"zero iterations", 0, 20, "iterations must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := executeTune(path, smallTuneConfig(), tt.iters, tt.pop, 42, &out)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
			if out.Len() != 0 {
				t.Errorf("Nothing should be written on error, got %q", out.String())
			}
		})
	}
}

func TestExecuteTune_InvalidSearchBox(t *testing.T) {
	cfg := smallTuneConfig()
	cfg.MaxCoolingRate = 1

	_, err := executeTune(writeRectangle(t), cfg, 2, 20, 42, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "cooling rate range") {
		t.Errorf("Expected cooling rate range error, got %v", err)
	}
}
