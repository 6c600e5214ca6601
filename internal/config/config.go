// Package config holds run parameters: defaults, an optional YAML run file,
// and validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cwbudde/tspanneal/internal/opt"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Run configures one optimization run.
type Run struct {
	CitiesPath         string  `yaml:"cities" validate:"required"`
	MaxIterations      int     `yaml:"maxIterations" validate:"gte=1"`
	InitialTemperature float64 `yaml:"initialTemperature" validate:"gt=0"`
	CoolingRate        float64 `yaml:"coolingRate" validate:"gt=0,lt=1"`
	Restarts           int     `yaml:"restarts" validate:"gte=1,lte=1024"`
	// Seed 0 means seed from system entropy.
	Seed        uint64                `yaml:"seed"`
	Output      string                `yaml:"output"`
	Format      string                `yaml:"format" validate:"oneof=text json"`
	ReportEvery int                   `yaml:"reportEvery" validate:"gte=0"`
	Convergence opt.ConvergenceConfig `yaml:"convergence"`
	DataDir     string                `yaml:"dataDir"`
	Resume      string                `yaml:"resume"`
}

// Defaults returns the stock run configuration.
func Defaults() Run {
	p := opt.DefaultParams()
	return Run{
		MaxIterations:      p.MaxIterations,
		InitialTemperature: p.InitialTemperature,
		CoolingRate:        p.CoolingRate,
		Restarts:           1,
		Format:             "text",
		ReportEvery:        1000,
		Convergence:        opt.DisabledConvergenceConfig(),
		DataDir:            "./data",
	}
}

// LoadFile reads a YAML run file on top of Defaults. Unknown keys are rejected.
func LoadFile(path string) (Run, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Params returns the annealing parameters of the run.
func (r Run) Params() opt.Params {
	return opt.Params{
		MaxIterations:      r.MaxIterations,
		InitialTemperature: r.InitialTemperature,
		CoolingRate:        r.CoolingRate,
	}
}

// Validate checks the run configuration.
func (r Run) Validate() error {
	if err := Struct(r); err != nil {
		return err
	}
	if r.Convergence.Enabled && r.Convergence.Patience <= 0 {
		return errors.New("convergence.patience must be positive when convergence is enabled")
	}
	return nil
}

// Struct validates s by its validate tags and flattens field errors into one
// readable message.
func Struct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := lowerFirst(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
