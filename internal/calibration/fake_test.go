package calibration

import (
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/contact"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/reference"
)

// fakeModel reports, for contact i, the force k_i*Q[i] + 1000*h_i*U[i]. States carry
// one coordinate and one speed per contact.
type fakeModel struct {
	n           int
	mass        float64
	gravity     contact.Vec2
	params      PhysicalParams
	initialized bool
	forces      []fakeContact

	clones    *atomic.Int32
	cloneErr  error
	initErr   error
	failAbove float64 // Realize fails when any height exceeds this
	delay     time.Duration
	constant  float64 // when non-zero, every contact reports k_i*constant
}

type fakeContact struct{ fy float64 }

func (c *fakeContact) Name() string       { return "fake" }
func (c *fakeContact) Force() contact.Vec2 { return contact.Vec2{Y: c.fy} }

func newFakeModel(n int) *fakeModel {
	m := &fakeModel{
		n:         n,
		mass:      1,
		gravity:   contact.Vec2{Y: -10},
		clones:    &atomic.Int32{},
		failAbove: math.Inf(1),
		forces:    make([]fakeContact, n),
	}
	m.params = PhysicalParams{Heights: make([]float64, n), Stiffnesses: make([]float64, n)}
	return m
}

func (m *fakeModel) Kind() string { return "fake" }

func (m *fakeModel) Clone() (contact.Model, error) {
	if m.cloneErr != nil {
		return nil, m.cloneErr
	}
	m.clones.Add(1)
	cp := *m
	cp.params = m.params.Clone()
	cp.forces = make([]fakeContact, m.n)
	cp.initialized = false
	return &cp, nil
}

func (m *fakeModel) NumContacts() int { return m.n }

func (m *fakeModel) Apply(p PhysicalParams) error {
	if len(p.Heights) != m.n || len(p.Stiffnesses) != m.n {
		return errors.New("dimension mismatch")
	}
	m.params = p.Clone()
	m.initialized = false
	return nil
}

func (m *fakeModel) Params() PhysicalParams { return m.params.Clone() }

func (m *fakeModel) Initialize() error {
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *fakeModel) Realize(s contact.State) error {
	if !m.initialized {
		return contact.ErrNotInitialized
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	for i := 0; i < m.n; i++ {
		if m.params.Heights[i] > m.failAbove {
			return errors.New("marker below ground plane limit")
		}
		if m.constant != 0 {
			m.forces[i].fy = m.params.Stiffnesses[i] * m.constant
			continue
		}
		m.forces[i].fy = m.params.Stiffnesses[i]*s.Q[i] + 1000*m.params.Heights[i]*s.U[i]
	}
	return nil
}

func (m *fakeModel) Contacts() []contact.Contact {
	out := make([]contact.Contact, m.n)
	for i := range m.forces {
		out[i] = &m.forces[i]
	}
	return out
}

func (m *fakeModel) TotalMass() float64    { return m.mass }
func (m *fakeModel) Gravity() contact.Vec2 { return m.gravity }

// fakeTrajectory has samples states on [0, 1] with Q[i] = 1 + sin((i+1) t) and
// U[i] = cos((i+1) t).
func fakeTrajectory(n, samples int) contact.Trajectory {
	states := make([]contact.State, samples)
	for k := range states {
		t := float64(k) / float64(samples-1)
		q := make([]float64, n)
		u := make([]float64, n)
		for i := 0; i < n; i++ {
			q[i] = 1 + math.Sin(float64(i+1)*3*t)
			u[i] = math.Cos(float64(i+1)*3*t)
		}
		states[k] = contact.State{Time: t, Q: q, U: u}
	}
	traj, err := contact.NewTrajectory(states)
	if err != nil {
		panic(err)
	}
	return traj
}

// testMapping keeps stiffness forces on the order of 100 N
func testMapping(n int) ParameterMapping {
	return ParameterMapping{NumContacts: n, HeightLower: -0.06, HeightUpper: 0.05, StiffnessScale: 100}
}

// truthReference measures the fake model under truth x and wraps it as a reference
func truthReference(model *fakeModel, mapping ParameterMapping, traj contact.Trajectory, x []float64) *reference.Signal {
	p, err := mapping.Map(x)
	if err != nil {
		panic(err)
	}
	force, err := contact.MeasureVerticalForce(model, p, traj)
	if err != nil {
		panic(err)
	}
	sig, err := reference.NewSignal("fy", traj.Times(), force, reference.Linear)
	if err != nil {
		panic(err)
	}
	return sig
}
