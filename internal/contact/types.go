// Package contact holds the forward models that the calibration engine drives: a planar
// foot with Ackermann-van den Bogert contact elements and a one-degree-of-freedom ball.
package contact

import (
	"fmt"
	"math"
)

// Vec2 is a planar vector. Y is vertical; positive Y points away from the ground.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns v + o
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Norm returns the Euclidean length of v
func (v Vec2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

// State is one sample of a model's motion: generalized coordinates Q and speeds U at Time.
// States handed to a model are treated as read-only.
type State struct {
	Time float64   `json:"time"`
	Q    []float64 `json:"q"`
	U    []float64 `json:"u"`
}

func (s State) validate(nq, nu int) error {
	if len(s.Q) != nq || len(s.U) != nu {
		return fmt.Errorf("state at t=%g has %d coordinates and %d speeds, model expects %d and %d",
			s.Time, len(s.Q), len(s.U), nq, nu)
	}
	if math.IsNaN(s.Time) || math.IsInf(s.Time, 0) {
		return fmt.Errorf("state time is not finite")
	}
	for i, q := range s.Q {
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return fmt.Errorf("state at t=%g: coordinate %d is not finite", s.Time, i)
		}
	}
	for i, u := range s.U {
		if math.IsNaN(u) || math.IsInf(u, 0) {
			return fmt.Errorf("state at t=%g: speed %d is not finite", s.Time, i)
		}
	}
	return nil
}

// Params are the physical contact parameters applied to a model: one height offset and
// one stiffness per contact element, in contact order.
type Params struct {
	Heights     []float64 `json:"heights"`
	Stiffnesses []float64 `json:"stiffnesses"`
}

// Clone returns a deep copy of p
func (p Params) Clone() Params {
	out := Params{
		Heights:     make([]float64, len(p.Heights)),
		Stiffnesses: make([]float64, len(p.Stiffnesses)),
	}
	copy(out.Heights, p.Heights)
	copy(out.Stiffnesses, p.Stiffnesses)
	return out
}

func (p Params) validate(numContacts int) error {
	if len(p.Heights) != numContacts || len(p.Stiffnesses) != numContacts {
		return fmt.Errorf("params carry %d heights and %d stiffnesses, model has %d contacts",
			len(p.Heights), len(p.Stiffnesses), numContacts)
	}
	for i := 0; i < numContacts; i++ {
		if math.IsNaN(p.Heights[i]) || math.IsInf(p.Heights[i], 0) {
			return fmt.Errorf("contact %d: height is not finite", i)
		}
		k := p.Stiffnesses[i]
		if math.IsNaN(k) || math.IsInf(k, 0) {
			return fmt.Errorf("contact %d: stiffness is not finite", i)
		}
		if k < 0 {
			return fmt.Errorf("contact %d: stiffness cannot be negative, got %g", i, k)
		}
	}
	return nil
}
