package contact

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

// BallConfig describes a point mass bouncing on linear ground contact
type BallConfig struct {
	MassKg    float64
	Gravity   float64 // signed vertical acceleration, negative is down
	Stiffness float64 // N/m
}

// DefaultBallConfig matches the bouncing-ball calibration problem
func DefaultBallConfig() BallConfig {
	return BallConfig{MassKg: 50.0, Gravity: -9.81, Stiffness: 3180.0}
}

// BallModel is a one-DOF ball: coordinate y, speed vy, and a single contact station at
// a height offset from the ball centre.
type BallModel struct {
	cfg         BallConfig
	contact     *linearContact
	offset      float64
	station     float64
	initialized bool
}

// linearContact is a penetration spring k*max(0,d) plus the void stiffness.
type linearContact struct {
	stiffness float64
	pos       float64
}

func (c *linearContact) Name() string { return "ball_contact" }

func (c *linearContact) Force() Vec2 {
	depth := -c.pos
	return Vec2{Y: c.stiffness*math.Max(0, depth) + voidStiffness*depth}
}

// NewBallModel creates a ball model
func NewBallModel(cfg BallConfig) (*BallModel, error) {
	if cfg.MassKg <= 0 {
		return nil, fmt.Errorf("ball mass must be positive, got %g", cfg.MassKg)
	}
	if cfg.Gravity == 0 {
		return nil, fmt.Errorf("gravity cannot be zero")
	}
	if cfg.Stiffness < 0 {
		return nil, fmt.Errorf("ball stiffness cannot be negative, got %g", cfg.Stiffness)
	}
	return &BallModel{cfg: cfg, contact: &linearContact{stiffness: cfg.Stiffness}}, nil
}

func (m *BallModel) Kind() string { return "ball" }

func (m *BallModel) Clone() (Model, error) {
	cp := *m
	c := *m.contact
	cp.contact = &c
	cp.initialized = false
	return &cp, nil
}

func (m *BallModel) NumContacts() int { return 1 }

func (m *BallModel) Apply(p Params) error {
	if err := p.validate(1); err != nil {
		return err
	}
	m.offset = p.Heights[0]
	m.contact.stiffness = p.Stiffnesses[0]
	m.initialized = false
	return nil
}

func (m *BallModel) Params() Params {
	return Params{Heights: []float64{m.offset}, Stiffnesses: []float64{m.contact.stiffness}}
}

func (m *BallModel) Initialize() error {
	m.station = m.offset
	m.initialized = true
	return nil
}

func (m *BallModel) Realize(s State) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if err := s.validate(1, 1); err != nil {
		return err
	}
	m.contact.pos = s.Q[0] + m.station
	return nil
}

func (m *BallModel) Contacts() []Contact { return []Contact{m.contact} }

func (m *BallModel) TotalMass() float64 { return m.cfg.MassKg }

func (m *BallModel) Gravity() Vec2 { return Vec2{Y: m.cfg.Gravity} }

// SynthesizeMotion drops the ball from opts.DropHeight and integrates the contact
// dynamics with semi-implicit Euler, sampling opts.Samples states.
func (m *BallModel) SynthesizeMotion(truth Params, opts SynthesisOptions) (Trajectory, error) {
	if err := truth.validate(1); err != nil {
		return Trajectory{}, err
	}
	opts = opts.withDefaults()

	c := &linearContact{stiffness: truth.Stiffnesses[0]}
	const substeps = 200
	dt := opts.Duration / float64(opts.Samples-1) / substeps

	y, vy := opts.DropHeight, 0.0
	times := utils.Linspace(0, opts.Duration, opts.Samples)
	states := make([]State, 0, opts.Samples)
	for i, t := range times {
		states = append(states, State{
			Time: t,
			Q:    []float64{y},
			U:    []float64{vy},
		})
		if i == opts.Samples-1 {
			break
		}
		for k := 0; k < substeps; k++ {
			c.pos = y + truth.Heights[0]
			acc := m.cfg.Gravity + c.Force().Y/m.cfg.MassKg
			vy += acc * dt
			y += vy * dt
		}
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return Trajectory{}, fmt.Errorf("ball integration diverged at sample %d", i)
		}
	}
	return NewTrajectory(states)
}
