package contact

import "math"

// voidStiffness keeps a small restoring force when a station is out of contact, so the
// force is continuous across touchdown.
const voidStiffness = 1.0 // N/m

// AVDBContact is the Ackermann and van den Bogert (2010) ground contact: a cubic
// normal spring with Hunt-Crossley style damping and smoothed Coulomb friction, acting at
// a single body-fixed station against the plane y = 0.
type AVDBContact struct {
	name            string
	stiffness       float64 // N/m^3
	dissipation     float64 // s/m
	friction        float64
	velocityScaling float64 // m/s

	// Station kinematics, valid after the owning model is realized.
	pos Vec2
	vel Vec2
}

// NewAVDBContact creates a contact element with the given material properties
func NewAVDBContact(name string, stiffness, dissipation, friction, velocityScaling float64) *AVDBContact {
	return &AVDBContact{
		name:            name,
		stiffness:       stiffness,
		dissipation:     dissipation,
		friction:        friction,
		velocityScaling: velocityScaling,
	}
}

// Name returns the element name
func (c *AVDBContact) Name() string {
	return c.name
}

// Stiffness returns the cubic spring stiffness
func (c *AVDBContact) Stiffness() float64 {
	return c.stiffness
}

// Force returns the ground reaction force at the realized station kinematics.
func (c *AVDBContact) Force() Vec2 {
	depth := -c.pos.Y
	depthRate := -c.vel.Y

	var f Vec2
	if depth > 0 {
		f.Y = c.stiffness * depth * depth * depth * (1 + c.dissipation*depthRate)
	}
	f.Y += voidStiffness * depth

	z := math.Exp(-c.vel.X / c.velocityScaling)
	f.X = -c.friction * f.Y * (1 - z) / (1 + z)
	return f
}

func (c *AVDBContact) clone() *AVDBContact {
	cp := *c
	return &cp
}
