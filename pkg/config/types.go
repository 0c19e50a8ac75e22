package config

import "time"

// Config is the calibration configuration, loaded from YAML
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Model     ModelConfig     `yaml:"model"`
	Data      DataConfig      `yaml:"data"`
	Mapping   MappingConfig   `yaml:"mapping"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Output    OutputConfig    `yaml:"output,omitempty"`
}

// ModelConfig selects and parameterizes the forward model
type ModelConfig struct {
	Kind                   string    `yaml:"kind"` // foot or ball
	MassKg                 float64   `yaml:"mass_kg"`
	Gravity                []float64 `yaml:"gravity,flow,omitempty"` // [x, y]
	NumContacts            int       `yaml:"num_contacts"`
	HeelX                  float64   `yaml:"heel_x"`
	ToeX                   float64   `yaml:"toe_x"`
	MarkerY                *float64  `yaml:"marker_y,omitempty"`
	Stiffness              float64   `yaml:"stiffness"`
	Dissipation            float64   `yaml:"dissipation"`
	FrictionCoefficient    float64   `yaml:"friction_coefficient"`
	TangentVelocityScaling float64   `yaml:"tangent_velocity_scaling"`
}

// DataConfig locates the motion and the reference force. When both files are empty the
// problem is synthesized from the model.
type DataConfig struct {
	StatesFile      string          `yaml:"states_file,omitempty"`
	ReferenceFile   string          `yaml:"reference_file,omitempty"`
	ReferenceColumn string          `yaml:"reference_column,omitempty"`
	Interpolation   string          `yaml:"interpolation,omitempty"` // natural_cubic, akima, fritsch_butland, linear
	Synthetic       SyntheticConfig `yaml:"synthetic,omitempty"`
	// Asymmetry reports step time asymmetry from two-foot columns of the reference file
	Asymmetry *AsymmetryConfig `yaml:"asymmetry,omitempty"`
}

// AsymmetryConfig names the reference file columns of both feet
type AsymmetryConfig struct {
	LeftForceColumn     string  `yaml:"left_force_column"`
	RightForceColumn    string  `yaml:"right_force_column"`
	LeftPositionColumn  string  `yaml:"left_position_column"`
	RightPositionColumn string  `yaml:"right_position_column"`
	ForceThreshold      float64 `yaml:"force_threshold"` // N
	Smoothing           float64 `yaml:"smoothing"`       // 0 uses hard switches
	Target              float64 `yaml:"target"`
}

// SyntheticConfig controls generated problems
type SyntheticConfig struct {
	DurationS float64 `yaml:"duration_s"`
	Samples   int     `yaml:"samples"`
	NoiseStd  float64 `yaml:"noise_std"`
	Seed      int64   `yaml:"seed"`
	// Truth overrides the parameters the reference force is generated with. Empty
	// slices fall back to the model's configured marker height and stiffness.
	TruthHeights     []float64 `yaml:"truth_heights,flow,omitempty"`
	TruthStiffnesses []float64 `yaml:"truth_stiffnesses,flow,omitempty"`
}

// MappingConfig holds the physical bounds of the normalized search space
type MappingConfig struct {
	HeightLower    float64 `yaml:"height_lower"`
	HeightUpper    float64 `yaml:"height_upper"`
	StiffnessScale float64 `yaml:"stiffness_scale"`
}

// OptimizerConfig configures the CMA-ES search
type OptimizerConfig struct {
	PopulationSize    int      `yaml:"population_size"` // 0 selects 4 + floor(3 ln n)
	InitialStepSize   float64  `yaml:"initial_step_size"`
	InitialPoint      *float64 `yaml:"initial_point,omitempty"`
	Tolerance         *float64 `yaml:"tolerance,omitempty"` // 0 disables the improvement tolerance
	StallIterations   int      `yaml:"stall_iterations"`    // 0 sizes the window from the problem
	MaxIterations     int      `yaml:"max_iterations"`
	Parallelism       int      `yaml:"parallelism"` // 0 selects the number of CPUs
	Mode              string   `yaml:"mode"`        // threads or serial
	Seed              *int64   `yaml:"seed,omitempty"`
	EvaluationTimeout string   `yaml:"evaluation_timeout,omitempty"` // e.g. "30s"; empty or "0s" disables
	Convergence       string   `yaml:"convergence,omitempty"`        // stall, plateau, spread, combined
	DiagnosticsLevel  *int     `yaml:"diagnostics_level,omitempty"`
}

// OutputConfig names the files a run writes. Empty entries are skipped.
type OutputConfig struct {
	ComparisonFile string `yaml:"comparison_file,omitempty"` // .sto or .csv
	PlotFile       string `yaml:"plot_file,omitempty"`
	SQLitePath     string `yaml:"sqlite_path,omitempty"`
	ProgressFile   string `yaml:"progress_file,omitempty"`
}

// GetEvaluationTimeout parses the evaluation timeout. Empty means no timeout.
func (o *OptimizerConfig) GetEvaluationTimeout() (time.Duration, error) {
	if o.EvaluationTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(o.EvaluationTimeout)
}

// GetTolerance returns the per-iteration improvement tolerance
func (o *OptimizerConfig) GetTolerance() float64 {
	if o.Tolerance == nil {
		return DefaultTolerance
	}
	return *o.Tolerance
}

// GetSeed returns the search seed. An explicit 0 selects a time-based seed.
func (o *OptimizerConfig) GetSeed() int64 {
	if o.Seed == nil {
		return DefaultSeed
	}
	return *o.Seed
}

// GetDiagnosticsLevel returns how much per-iteration detail the driver logs
func (o *OptimizerConfig) GetDiagnosticsLevel() int {
	if o.DiagnosticsLevel == nil {
		return DefaultDiagnosticsLevel
	}
	return *o.DiagnosticsLevel
}

// StartPoint returns the initial value of every normalized variable
func (o *OptimizerConfig) StartPoint() float64 {
	if o.InitialPoint == nil {
		return DefaultInitialPoint
	}
	return *o.InitialPoint
}

// IsSynthetic reports whether the calibration problem is generated rather than loaded
func (d *DataConfig) IsSynthetic() bool {
	return d.StatesFile == "" && d.ReferenceFile == ""
}
