package config

// Defaults of the gait calibration problem
const (
	DefaultLogLevel         = "info"
	DefaultModelKind        = "foot"
	DefaultHeightLower      = -0.06
	DefaultHeightUpper      = 0.05
	DefaultStiffnessScale   = 1e8
	DefaultInitialStepSize  = 0.5
	DefaultInitialPoint     = 0.5
	DefaultTolerance        = 1e-3
	DefaultMaxIterations    = 3000
	DefaultSeed             = 1
	DefaultDiagnosticsLevel = 1
	DefaultMode             = "threads"
	DefaultInterpolation    = "natural_cubic"
)

// ApplyDefaults fills unset fields. Model defaults depend on model.kind.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	applyModelDefaults(&cfg.Model)

	if cfg.Data.Interpolation == "" {
		cfg.Data.Interpolation = DefaultInterpolation
	}
	if cfg.Data.ReferenceColumn == "" {
		cfg.Data.ReferenceColumn = "ground_force_vy"
	}
	if a := cfg.Data.Asymmetry; a != nil {
		if a.LeftForceColumn == "" {
			a.LeftForceColumn = "l_ground_force_vy"
		}
		if a.RightForceColumn == "" {
			a.RightForceColumn = "r_ground_force_vy"
		}
		if a.LeftPositionColumn == "" {
			a.LeftPositionColumn = "l_calcn_px"
		}
		if a.RightPositionColumn == "" {
			a.RightPositionColumn = "r_calcn_px"
		}
		if a.ForceThreshold == 0 {
			a.ForceThreshold = 25
		}
	}
	syn := &cfg.Data.Synthetic
	if syn.DurationS == 0 {
		syn.DurationS = 0.6
		if cfg.Model.Kind == "ball" {
			syn.DurationS = 1.25
		}
	}
	if syn.Samples == 0 {
		syn.Samples = 61
		if cfg.Model.Kind == "ball" {
			syn.Samples = 126
		}
	}
	if syn.Seed == 0 {
		syn.Seed = 1
	}

	if cfg.Mapping.HeightLower == 0 && cfg.Mapping.HeightUpper == 0 {
		cfg.Mapping.HeightLower = DefaultHeightLower
		cfg.Mapping.HeightUpper = DefaultHeightUpper
	}
	if cfg.Mapping.StiffnessScale == 0 {
		cfg.Mapping.StiffnessScale = DefaultStiffnessScale
		if cfg.Model.Kind == "ball" {
			cfg.Mapping.StiffnessScale = 1e4
		}
	}

	opt := &cfg.Optimizer
	if opt.InitialStepSize == 0 {
		opt.InitialStepSize = DefaultInitialStepSize
	}
	if opt.InitialPoint == nil {
		v := DefaultInitialPoint
		opt.InitialPoint = &v
	}
	if opt.Tolerance == nil {
		v := DefaultTolerance
		opt.Tolerance = &v
	}
	if opt.Seed == nil {
		v := int64(DefaultSeed)
		opt.Seed = &v
	}
	if opt.DiagnosticsLevel == nil {
		v := DefaultDiagnosticsLevel
		opt.DiagnosticsLevel = &v
	}
	if opt.MaxIterations == 0 {
		opt.MaxIterations = DefaultMaxIterations
	}
	if opt.Mode == "" {
		opt.Mode = DefaultMode
	}
	if opt.Convergence == "" {
		opt.Convergence = "stall"
	}
}

func applyModelDefaults(m *ModelConfig) {
	if m.Kind == "" {
		m.Kind = DefaultModelKind
	}
	if len(m.Gravity) == 0 {
		m.Gravity = []float64{0, -9.81}
	}

	if m.Kind == "ball" {
		if m.MassKg == 0 {
			m.MassKg = 50
		}
		if m.NumContacts == 0 {
			m.NumContacts = 1
		}
		if m.Stiffness == 0 {
			m.Stiffness = 3180
		}
		if m.MarkerY == nil {
			y := 0.0
			m.MarkerY = &y
		}
		return
	}

	if m.MassKg == 0 {
		m.MassKg = 72
	}
	if m.NumContacts == 0 {
		m.NumContacts = 6
	}
	if m.HeelX == 0 && m.ToeX == 0 {
		m.HeelX = -0.03
		m.ToeX = 0.28
	}
	if m.MarkerY == nil {
		y := -0.027
		m.MarkerY = &y
	}
	if m.Stiffness == 0 {
		m.Stiffness = 5e7
	}
	if m.Dissipation == 0 {
		m.Dissipation = 1.0
	}
	if m.FrictionCoefficient == 0 {
		m.FrictionCoefficient = 0.95
	}
	if m.TangentVelocityScaling == 0 {
		m.TangentVelocityScaling = 0.3
	}
}

// DefaultConfig returns a synthetic six-marker foot calibration with every default applied
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
