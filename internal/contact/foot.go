package contact

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

// FootConfig describes a planar foot carrying the whole body weight on a row of contact
// markers spread from heel to toe.
type FootConfig struct {
	MassKg          float64
	Gravity         Vec2
	NumContacts     int
	HeelX           float64
	ToeX            float64
	MarkerY         float64
	Stiffness       float64
	Dissipation     float64
	Friction        float64
	VelocityScaling float64
}

// DefaultFootConfig mirrors the six-marker foot of the gait calibration sandbox
func DefaultFootConfig() FootConfig {
	return FootConfig{
		MassKg:          72.0,
		Gravity:         Vec2{X: 0, Y: -9.81},
		NumContacts:     6,
		HeelX:           -0.03,
		ToeX:            0.28,
		MarkerY:         -0.027,
		Stiffness:       5e7,
		Dissipation:     1.0,
		Friction:        0.95,
		VelocityScaling: 0.3,
	}
}

// Validate checks the configuration for physically meaningful values
func (c FootConfig) Validate() error {
	if c.MassKg <= 0 {
		return fmt.Errorf("foot mass must be positive, got %g", c.MassKg)
	}
	if c.Gravity.Norm() == 0 {
		return fmt.Errorf("gravity cannot be zero")
	}
	if c.NumContacts <= 0 {
		return fmt.Errorf("foot needs at least one contact, got %d", c.NumContacts)
	}
	if c.ToeX <= c.HeelX {
		return fmt.Errorf("toe_x (%g) must be greater than heel_x (%g)", c.ToeX, c.HeelX)
	}
	if c.Stiffness < 0 || c.Dissipation < 0 || c.Friction < 0 {
		return fmt.Errorf("stiffness, dissipation and friction cannot be negative")
	}
	if c.VelocityScaling <= 0 {
		return fmt.Errorf("tangent velocity scaling must be positive, got %g", c.VelocityScaling)
	}
	return nil
}

// Marker is a body-fixed station on the foot
type Marker struct {
	Name     string
	Location Vec2
}

// FootModel is a rigid planar foot with generalized coordinates (tx, ty, rz) and speeds
// (vx, vy, wz). Marker i drives contact element i.
type FootModel struct {
	cfg         FootConfig
	markers     []Marker
	contacts    []*AVDBContact
	stations    []Vec2 // marker locations captured by Initialize
	initialized bool
}

// NewFootModel builds a foot with markers evenly spaced between heel and toe.
func NewFootModel(cfg FootConfig) (*FootModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &FootModel{
		cfg:      cfg,
		markers:  make([]Marker, cfg.NumContacts),
		contacts: make([]*AVDBContact, cfg.NumContacts),
	}
	for i := 0; i < cfg.NumContacts; i++ {
		x := cfg.HeelX
		if cfg.NumContacts > 1 {
			x = cfg.HeelX + float64(i)/float64(cfg.NumContacts-1)*(cfg.ToeX-cfg.HeelX)
		}
		name := fmt.Sprintf("marker%d", i)
		m.markers[i] = Marker{Name: name, Location: Vec2{X: x, Y: cfg.MarkerY}}
		m.contacts[i] = NewAVDBContact(name+"_contact", cfg.Stiffness, cfg.Dissipation, cfg.Friction, cfg.VelocityScaling)
	}
	return m, nil
}

// Kind implements Model
func (m *FootModel) Kind() string { return "foot" }

// Clone implements Model
func (m *FootModel) Clone() (Model, error) {
	cp := &FootModel{
		cfg:      m.cfg,
		markers:  make([]Marker, len(m.markers)),
		contacts: make([]*AVDBContact, len(m.contacts)),
	}
	copy(cp.markers, m.markers)
	for i, c := range m.contacts {
		cp.contacts[i] = c.clone()
	}
	return cp, nil
}

// NumContacts implements Model
func (m *FootModel) NumContacts() int { return len(m.contacts) }

// Markers returns a copy of the marker set
func (m *FootModel) Markers() []Marker {
	out := make([]Marker, len(m.markers))
	copy(out, m.markers)
	return out
}

// Apply moves each marker to the given body-frame height and sets contact stiffness.
func (m *FootModel) Apply(p Params) error {
	if err := p.validate(len(m.contacts)); err != nil {
		return err
	}
	for i := range m.markers {
		m.markers[i].Location.Y = p.Heights[i]
		m.contacts[i].stiffness = p.Stiffnesses[i]
	}
	m.initialized = false
	return nil
}

// Params implements Model
func (m *FootModel) Params() Params {
	p := Params{
		Heights:     make([]float64, len(m.markers)),
		Stiffnesses: make([]float64, len(m.contacts)),
	}
	for i := range m.markers {
		p.Heights[i] = m.markers[i].Location.Y
		p.Stiffnesses[i] = m.contacts[i].stiffness
	}
	return p
}

// Initialize captures marker locations as contact stations.
func (m *FootModel) Initialize() error {
	if err := m.cfg.Validate(); err != nil {
		return err
	}
	if len(m.stations) != len(m.markers) {
		m.stations = make([]Vec2, len(m.markers))
	}
	for i, mk := range m.markers {
		m.stations[i] = mk.Location
	}
	m.initialized = true
	return nil
}

// Realize computes world-frame position and velocity of every contact station at s.
func (m *FootModel) Realize(s State) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if err := s.validate(3, 3); err != nil {
		return err
	}
	tx, ty, rz := s.Q[0], s.Q[1], s.Q[2]
	vx, vy, wz := s.U[0], s.U[1], s.U[2]
	sin, cos := math.Sincos(rz)
	for i, st := range m.stations {
		rx := cos*st.X - sin*st.Y
		ry := sin*st.X + cos*st.Y
		c := m.contacts[i]
		c.pos = Vec2{X: tx + rx, Y: ty + ry}
		c.vel = Vec2{X: vx - wz*ry, Y: vy + wz*rx}
	}
	return nil
}

// Contacts implements Model
func (m *FootModel) Contacts() []Contact {
	out := make([]Contact, len(m.contacts))
	for i, c := range m.contacts {
		out[i] = c
	}
	return out
}

// TotalMass implements Model
func (m *FootModel) TotalMass() float64 { return m.cfg.MassKg }

// Gravity implements Model
func (m *FootModel) Gravity() Vec2 { return m.cfg.Gravity }

// SynthesizeMotion produces a stance phase: the foot rolls from heel strike to toe off
// while the lowest station follows a half-sine penetration profile.
func (m *FootModel) SynthesizeMotion(truth Params, opts SynthesisOptions) (Trajectory, error) {
	if err := truth.validate(len(m.markers)); err != nil {
		return Trajectory{}, err
	}
	opts = opts.withDefaults()

	xs := make([]float64, len(m.markers))
	for i, mk := range m.markers {
		xs[i] = mk.Location.X
	}
	pose := func(t float64) (float64, float64, float64) {
		phase := t / opts.Duration
		rz := opts.RollStart + (opts.RollEnd-opts.RollStart)*phase
		sin, cos := math.Sincos(rz)
		lowest := math.Inf(1)
		for i, x := range xs {
			lowest = math.Min(lowest, sin*x+cos*truth.Heights[i])
		}
		penetration := opts.PeakPenetration * math.Sin(math.Pi*phase)
		return opts.SlideSpeed * t, -penetration - lowest, rz
	}

	const h = 1e-6
	times := utils.Linspace(0, opts.Duration, opts.Samples)
	states := make([]State, opts.Samples)
	for i, t := range times {
		tx, ty, rz := pose(t)
		ax, ay, ar := pose(t - h)
		bx, by, br := pose(t + h)
		states[i] = State{
			Time: t,
			Q:    []float64{tx, ty, rz},
			U:    []float64{(bx - ax) / (2 * h), (by - ay) / (2 * h), (br - ar) / (2 * h)},
		}
	}
	return NewTrajectory(states)
}
