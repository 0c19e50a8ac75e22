package contact

import "errors"

// ErrNotInitialized is returned when a model is realized after parameters changed and
// before Initialize re-derived its internal state.
var ErrNotInitialized = errors.New("model not initialized")

// Model is a forward model the calibration engine can clone, parameterize and drive
// through a trajectory. A Model value is not safe for concurrent use; callers give each
// goroutine its own clone.
type Model interface {
	// Kind names the model family, e.g. "foot" or "ball".
	Kind() string
	// Clone returns an independent deep copy. The copy must be initialized before use.
	Clone() (Model, error)
	// NumContacts is the number of contact elements.
	NumContacts() int
	// Apply sets contact heights and stiffnesses. It invalidates derived state.
	Apply(p Params) error
	// Params returns the currently applied contact parameters.
	Params() Params
	// Initialize re-derives internal state after parameter changes.
	Initialize() error
	// Realize advances the model to s so that contacts report forces at s.
	Realize(s State) error
	// Contacts returns the force elements in contact order.
	Contacts() []Contact
	// TotalMass is the mass supported by the contacts, in kg.
	TotalMass() float64
	// Gravity is the gravitational acceleration vector.
	Gravity() Vec2
}

// Contact reports the force it applies to the ground at the model's realized state.
type Contact interface {
	Name() string
	Force() Vec2
}

// Synthesizer is implemented by models that can generate a plausible motion for a set of
// ground-truth parameters. Used to produce demo and test data in place of motion capture.
type Synthesizer interface {
	SynthesizeMotion(truth Params, opts SynthesisOptions) (Trajectory, error)
}

// VerticalForce sums the vertical force of every contact at the realized state.
func VerticalForce(m Model) float64 {
	total := 0.0
	for _, c := range m.Contacts() {
		total += c.Force().Y
	}
	return total
}
