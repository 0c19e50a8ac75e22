package config

import (
	"fmt"
	"math"
	"os"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on a configuration with defaults applied
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if err := validateModel(&cfg.Model); err != nil {
		return fmt.Errorf("model validation failed: %w", err)
	}
	if err := validateData(&cfg.Data, cfg.Model.NumContacts); err != nil {
		return fmt.Errorf("data validation failed: %w", err)
	}
	if err := validateMapping(&cfg.Mapping); err != nil {
		return fmt.Errorf("mapping validation failed: %w", err)
	}
	if err := validateOptimizer(&cfg.Optimizer); err != nil {
		return fmt.Errorf("optimizer validation failed: %w", err)
	}
	return nil
}

func validateModel(m *ModelConfig) error {
	switch m.Kind {
	case "foot":
		if m.ToeX <= m.HeelX {
			return fmt.Errorf("toe_x (%g) must be greater than heel_x (%g)", m.ToeX, m.HeelX)
		}
		if m.TangentVelocityScaling <= 0 {
			return fmt.Errorf("tangent_velocity_scaling must be positive, got %g", m.TangentVelocityScaling)
		}
		if m.Dissipation < 0 || m.FrictionCoefficient < 0 {
			return fmt.Errorf("dissipation and friction_coefficient cannot be negative")
		}
	case "ball":
		if m.NumContacts != 1 {
			return fmt.Errorf("ball model has exactly one contact, got num_contacts %d", m.NumContacts)
		}
	default:
		return fmt.Errorf("invalid kind: %s (must be foot or ball)", m.Kind)
	}
	if m.MassKg <= 0 {
		return fmt.Errorf("mass_kg must be positive, got %g", m.MassKg)
	}
	if m.NumContacts <= 0 {
		return fmt.Errorf("num_contacts must be positive, got %d", m.NumContacts)
	}
	if len(m.Gravity) != 2 {
		return fmt.Errorf("gravity must have two components, got %d", len(m.Gravity))
	}
	if math.Hypot(m.Gravity[0], m.Gravity[1]) == 0 {
		return fmt.Errorf("gravity cannot be zero")
	}
	if m.Stiffness < 0 {
		return fmt.Errorf("stiffness cannot be negative, got %g", m.Stiffness)
	}
	return nil
}

func validateData(d *DataConfig, numContacts int) error {
	if (d.StatesFile == "") != (d.ReferenceFile == "") {
		return fmt.Errorf("states_file and reference_file must be given together")
	}
	validInterpolations := map[string]bool{
		"natural_cubic":   true,
		"akima":           true,
		"fritsch_butland": true,
		"linear":          true,
	}
	if !validInterpolations[d.Interpolation] {
		return fmt.Errorf("invalid interpolation: %s (must be natural_cubic, akima, fritsch_butland, or linear)", d.Interpolation)
	}
	if a := d.Asymmetry; a != nil {
		if d.IsSynthetic() {
			return fmt.Errorf("asymmetry needs a reference_file with both feet")
		}
		if a.ForceThreshold < 0 || a.Smoothing < 0 {
			return fmt.Errorf("asymmetry force_threshold and smoothing cannot be negative")
		}
		if a.Target < -1 || a.Target > 1 {
			return fmt.Errorf("asymmetry target must be within [-1, 1], got %g", a.Target)
		}
	}
	s := d.Synthetic
	if s.DurationS <= 0 {
		return fmt.Errorf("synthetic duration_s must be positive, got %g", s.DurationS)
	}
	if s.Samples < 2 {
		return fmt.Errorf("synthetic samples must be at least 2, got %d", s.Samples)
	}
	if s.NoiseStd < 0 {
		return fmt.Errorf("synthetic noise_std cannot be negative, got %g", s.NoiseStd)
	}
	if len(s.TruthHeights) != 0 && len(s.TruthHeights) != numContacts {
		return fmt.Errorf("synthetic truth_heights needs %d values, got %d", numContacts, len(s.TruthHeights))
	}
	if len(s.TruthStiffnesses) != 0 && len(s.TruthStiffnesses) != numContacts {
		return fmt.Errorf("synthetic truth_stiffnesses needs %d values, got %d", numContacts, len(s.TruthStiffnesses))
	}
	return nil
}

func validateMapping(m *MappingConfig) error {
	if m.HeightUpper <= m.HeightLower {
		return fmt.Errorf("height_upper (%g) must be greater than height_lower (%g)", m.HeightUpper, m.HeightLower)
	}
	if m.StiffnessScale <= 0 {
		return fmt.Errorf("stiffness_scale must be positive, got %g", m.StiffnessScale)
	}
	return nil
}

func validateOptimizer(o *OptimizerConfig) error {
	if o.PopulationSize < 0 {
		return fmt.Errorf("population_size cannot be negative, got %d", o.PopulationSize)
	}
	if o.InitialStepSize <= 0 {
		return fmt.Errorf("initial_step_size must be positive, got %g", o.InitialStepSize)
	}
	if p := o.StartPoint(); p < 0 || p > 1 {
		return fmt.Errorf("initial_point must be within [0, 1], got %g", p)
	}
	if t := o.GetTolerance(); t < 0 {
		return fmt.Errorf("tolerance cannot be negative, got %g", t)
	}
	if o.StallIterations < 0 {
		return fmt.Errorf("stall_iterations cannot be negative, got %d", o.StallIterations)
	}
	if o.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", o.MaxIterations)
	}
	if o.Parallelism < 0 {
		return fmt.Errorf("parallelism cannot be negative, got %d", o.Parallelism)
	}
	if o.Mode != "threads" && o.Mode != "serial" {
		return fmt.Errorf("invalid mode: %s (must be threads or serial)", o.Mode)
	}
	validConvergence := map[string]bool{"stall": true, "plateau": true, "spread": true, "combined": true}
	if !validConvergence[o.Convergence] {
		return fmt.Errorf("invalid convergence: %s (must be stall, plateau, spread, or combined)", o.Convergence)
	}
	timeout, err := o.GetEvaluationTimeout()
	if err != nil {
		return fmt.Errorf("invalid evaluation_timeout %s: %w", o.EvaluationTimeout, err)
	}
	if timeout < 0 {
		return fmt.Errorf("evaluation_timeout cannot be negative, got %s", o.EvaluationTimeout)
	}
	if l := o.GetDiagnosticsLevel(); l < 0 {
		return fmt.Errorf("diagnostics_level cannot be negative, got %d", l)
	}
	return nil
}
