// Package problem assembles a calibration problem from configuration: the forward model,
// the motion, the reference force, the objective and the optimizer settings.
package problem

import (
	"fmt"
	"log/slog"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/contact"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/dataio"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/metrics"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/reference"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/config"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
)

// Problem is a ready-to-run calibration
type Problem struct {
	Config     *config.Config
	Model      contact.Model
	Mapping    calibration.ParameterMapping
	Trajectory contact.Trajectory
	Reference  *reference.Signal
	Pool       *calibration.ModelPool
	Objective  *calibration.Objective
	Settings   calibration.OptimizerSettings
	// Truth holds the generating parameters of a synthetic problem, nil otherwise
	Truth *contact.Params
	// Asymmetry is the step time asymmetry of the reference trial when data.asymmetry is set
	Asymmetry *models.StepTimeAsymmetry
}

// Build validates cfg and assembles the problem it describes. Files named by cfg.Data
// are read; when none are named a motion and its force are synthesized.
func Build(cfg *config.Config) (*Problem, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, &calibration.ConfigurationError{Field: "config", Reason: err.Error()}
	}

	model, err := BuildModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	p := &Problem{
		Config:  cfg,
		Model:   model,
		Mapping: MappingFor(cfg),
	}
	if err := p.Mapping.Validate(); err != nil {
		return nil, err
	}

	interp, err := reference.ParseInterpolation(cfg.Data.Interpolation)
	if err != nil {
		return nil, &calibration.ConfigurationError{Field: "data.interpolation", Reason: err.Error()}
	}
	if cfg.Data.IsSynthetic() {
		err = p.synthesize(interp)
	} else {
		err = p.load(interp)
	}
	if err != nil {
		return nil, err
	}

	timeout, err := cfg.Optimizer.GetEvaluationTimeout()
	if err != nil {
		return nil, &calibration.ConfigurationError{Field: "optimizer.evaluation_timeout", Reason: err.Error()}
	}
	p.Pool = calibration.NewModelPool(model)
	p.Objective, err = calibration.NewObjective(p.Pool, p.Mapping, p.Trajectory, p.Reference,
		calibration.WithEvaluationTimeout(timeout))
	if err != nil {
		return nil, err
	}
	p.Settings = SettingsFor(cfg.Optimizer, p.Mapping.Dim())
	if err := p.Settings.Validate(p.Mapping.Dim()); err != nil {
		return nil, err
	}
	return p, nil
}

// BuildModel constructs the configured forward model
func BuildModel(mc config.ModelConfig) (contact.Model, error) {
	markerY := 0.0
	if mc.MarkerY != nil {
		markerY = *mc.MarkerY
	}
	switch mc.Kind {
	case "foot":
		return contact.NewFootModel(contact.FootConfig{
			MassKg:          mc.MassKg,
			Gravity:         contact.Vec2{X: mc.Gravity[0], Y: mc.Gravity[1]},
			NumContacts:     mc.NumContacts,
			HeelX:           mc.HeelX,
			ToeX:            mc.ToeX,
			MarkerY:         markerY,
			Stiffness:       mc.Stiffness,
			Dissipation:     mc.Dissipation,
			Friction:        mc.FrictionCoefficient,
			VelocityScaling: mc.TangentVelocityScaling,
		})
	case "ball":
		ball, err := contact.NewBallModel(contact.BallConfig{
			MassKg:    mc.MassKg,
			Gravity:   mc.Gravity[1],
			Stiffness: mc.Stiffness,
		})
		if err != nil {
			return nil, err
		}
		if markerY != 0 {
			if err := ball.Apply(contact.Params{Heights: []float64{markerY}, Stiffnesses: []float64{mc.Stiffness}}); err != nil {
				return nil, err
			}
		}
		return ball, nil
	default:
		return nil, &calibration.ConfigurationError{Field: "model.kind", Reason: fmt.Sprintf("unknown model kind %q", mc.Kind)}
	}
}

// MappingFor returns the parameter mapping of cfg
func MappingFor(cfg *config.Config) calibration.ParameterMapping {
	return calibration.ParameterMapping{
		NumContacts:    cfg.Model.NumContacts,
		HeightLower:    cfg.Mapping.HeightLower,
		HeightUpper:    cfg.Mapping.HeightUpper,
		StiffnessScale: cfg.Mapping.StiffnessScale,
	}
}

// SettingsFor converts optimizer configuration to driver settings for dimension dim
func SettingsFor(opt config.OptimizerConfig, dim int) calibration.OptimizerSettings {
	start := make([]float64, dim)
	for i := range start {
		start[i] = opt.StartPoint()
	}
	return calibration.OptimizerSettings{
		PopulationSize:   opt.PopulationSize,
		InitialStepSize:  opt.InitialStepSize,
		InitialPoint:     start,
		Tolerance:        opt.GetTolerance(),
		StallIterations:  opt.StallIterations,
		MaxIterations:    opt.MaxIterations,
		Parallelism:      opt.Parallelism,
		Mode:             calibration.Mode(opt.Mode),
		Seed:             opt.GetSeed(),
		Convergence:      opt.Convergence,
		DiagnosticsLevel: opt.GetDiagnosticsLevel(),
	}
}

// NewDriver creates a driver for the problem
func (p *Problem) NewDriver(opts ...calibration.DriverOption) (*calibration.Driver, error) {
	return calibration.NewDriver(p.Objective, p.Settings, opts...)
}

// LogAttrs describes the problem for structured logs
func (p *Problem) LogAttrs() []slog.Attr {
	start, end := p.Reference.Span()
	return []slog.Attr{
		slog.String("model", p.Model.Kind()),
		slog.Int("contacts", p.Model.NumContacts()),
		slog.Int("variables", p.Mapping.Dim()),
		slog.Int("states", p.Trajectory.Len()),
		slog.Float64("reference_start", start),
		slog.Float64("reference_end", end),
		slog.Bool("synthetic", p.Truth != nil),
	}
}

func (p *Problem) synthesize(interp reference.Interpolation) error {
	cfg := p.Config
	truth := truthParams(cfg)
	opts := contact.DefaultSynthesisOptions()
	opts.Duration = cfg.Data.Synthetic.DurationS
	opts.Samples = cfg.Data.Synthetic.Samples
	opts.NoiseStd = cfg.Data.Synthetic.NoiseStd
	opts.Seed = cfg.Data.Synthetic.Seed

	syn, err := contact.Synthesize(p.Model, truth, opts)
	if err != nil {
		return &calibration.ConfigurationError{Field: "data.synthetic", Reason: err.Error()}
	}
	sig, err := reference.NewSignal(cfg.Data.ReferenceColumn, syn.Times, syn.Force, interp)
	if err != nil {
		return &calibration.ConfigurationError{Field: "data.synthetic", Reason: err.Error()}
	}
	p.Trajectory = syn.Trajectory
	p.Reference = sig
	p.Truth = &syn.Truth
	return nil
}

func (p *Problem) load(interp reference.Interpolation) error {
	cfg := p.Config
	layout, err := dataio.LayoutFor(cfg.Model.Kind)
	if err != nil {
		return &calibration.ConfigurationError{Field: "model.kind", Reason: err.Error()}
	}
	states, err := dataio.ReadTable(cfg.Data.StatesFile)
	if err != nil {
		return &calibration.ConfigurationError{Field: "data.states_file", Reason: err.Error()}
	}
	traj, err := dataio.StatesFromTable(states, layout)
	if err != nil {
		return &calibration.ConfigurationError{Field: "data.states_file", Reason: err.Error()}
	}
	forces, err := dataio.ReadTable(cfg.Data.ReferenceFile)
	if err != nil {
		return &calibration.ConfigurationError{Field: "data.reference_file", Reason: err.Error()}
	}
	sig, err := dataio.SignalFromTable(forces, cfg.Data.ReferenceColumn, interp)
	if err != nil {
		return &calibration.ConfigurationError{Field: "data.reference_column", Reason: err.Error()}
	}
	p.Trajectory = traj
	p.Reference = sig
	if cfg.Data.Asymmetry != nil {
		a, err := stepTimeAsymmetry(forces, cfg.Data.Asymmetry)
		if err != nil {
			return &calibration.ConfigurationError{Field: "data.asymmetry", Reason: err.Error()}
		}
		p.Asymmetry = a
	}
	return nil
}

func stepTimeAsymmetry(t *dataio.Table, ac *config.AsymmetryConfig) (*models.StepTimeAsymmetry, error) {
	times, err := t.Time()
	if err != nil {
		return nil, err
	}
	g := metrics.GaitSamples{Times: times}
	for _, c := range []struct {
		label string
		dst   *[]float64
	}{
		{ac.LeftForceColumn, &g.LeftForce},
		{ac.RightForceColumn, &g.RightForce},
		{ac.LeftPositionColumn, &g.LeftPosition},
		{ac.RightPositionColumn, &g.RightPosition},
	} {
		if *c.dst, err = t.Column(c.label); err != nil {
			return nil, err
		}
	}
	return metrics.StepTimeAsymmetry(g, metrics.AsymmetryOptions{
		ForceThreshold: ac.ForceThreshold,
		Smoothing:      ac.Smoothing,
		Target:         ac.Target,
	})
}

// truthParams returns the synthetic generating parameters. Missing entries take the
// configured marker height and stiffness.
func truthParams(cfg *config.Config) contact.Params {
	n := cfg.Model.NumContacts
	syn := cfg.Data.Synthetic
	p := contact.Params{Heights: make([]float64, n), Stiffnesses: make([]float64, n)}
	for i := 0; i < n; i++ {
		p.Heights[i] = *cfg.Model.MarkerY
		if len(syn.TruthHeights) == n {
			p.Heights[i] = syn.TruthHeights[i]
		}
		p.Stiffnesses[i] = cfg.Model.Stiffness
		if len(syn.TruthStiffnesses) == n {
			p.Stiffnesses[i] = syn.TruthStiffnesses[i]
		}
	}
	return p
}

// WriteData stores the problem's motion and reference samples so that a synthetic
// problem can be replayed from files. Either path may be empty to skip it.
func (p *Problem) WriteData(statesPath, referencePath string) error {
	if statesPath != "" {
		layout, err := dataio.LayoutFor(p.Model.Kind())
		if err != nil {
			return err
		}
		table, err := dataio.TableFromStates("states", p.Trajectory, layout)
		if err != nil {
			return err
		}
		if err := dataio.WriteTable(statesPath, table); err != nil {
			return err
		}
	}
	if referencePath != "" {
		table, err := dataio.ForceTable("ground_reaction", p.Reference.Name(), p.Reference.Times(), p.Reference.Values())
		if err != nil {
			return err
		}
		if err := dataio.WriteTable(referencePath, table); err != nil {
			return err
		}
	}
	return nil
}
