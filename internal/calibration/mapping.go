// Package calibration fits contact parameters of a forward model to a measured
// reference force with a population-based, derivative-free search.
package calibration

import (
	"fmt"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/contact"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

// PhysicalParams are the contact heights (m) and stiffnesses applied to a model.
type PhysicalParams = contact.Params

// ForwardModel is the model capability the engine drives.
type ForwardModel = contact.Model

const (
	// DefaultHeightLower is the lowest marker height reachable by the search, in metres
	DefaultHeightLower = -0.06
	// DefaultHeightUpper is the highest marker height reachable by the search, in metres
	DefaultHeightUpper = 0.05
	// DefaultStiffnessScale maps a normalized stiffness of 1 to 1e8 N/m^3
	DefaultStiffnessScale = 1e8
)

// ParameterMapping converts a normalized vector in [0,1]^(2n) to physical parameters.
// The first n components are heights, the last n stiffness fractions.
type ParameterMapping struct {
	NumContacts    int     `json:"num_contacts"`
	HeightLower    float64 `json:"height_lower"`
	HeightUpper    float64 `json:"height_upper"`
	StiffnessScale float64 `json:"stiffness_scale"`
}

// DefaultMapping returns the mapping used by the gait calibration problem
func DefaultMapping(numContacts int) ParameterMapping {
	return ParameterMapping{
		NumContacts:    numContacts,
		HeightLower:    DefaultHeightLower,
		HeightUpper:    DefaultHeightUpper,
		StiffnessScale: DefaultStiffnessScale,
	}
}

// Validate checks the mapping bounds
func (m ParameterMapping) Validate() error {
	if m.NumContacts <= 0 {
		return &ConfigurationError{Field: "mapping.num_contacts", Reason: fmt.Sprintf("must be positive, got %d", m.NumContacts)}
	}
	if !utils.IsFinite(m.HeightLower) || !utils.IsFinite(m.HeightUpper) || m.HeightUpper <= m.HeightLower {
		return &ConfigurationError{Field: "mapping.height_upper", Reason: fmt.Sprintf("must exceed height_lower (%g, %g)", m.HeightLower, m.HeightUpper)}
	}
	if !utils.IsFinite(m.StiffnessScale) || m.StiffnessScale <= 0 {
		return &ConfigurationError{Field: "mapping.stiffness_scale", Reason: fmt.Sprintf("must be positive, got %g", m.StiffnessScale)}
	}
	return nil
}

// Dim is the length of the normalized parameter vector
func (m ParameterMapping) Dim() int {
	return 2 * m.NumContacts
}

// Map converts x to physical parameters. It reads only m and x.
func (m ParameterMapping) Map(x []float64) (PhysicalParams, error) {
	if len(x) != m.Dim() {
		return PhysicalParams{}, &ConfigurationError{
			Field:  "parameters",
			Reason: fmt.Sprintf("expected %d variables, got %d", m.Dim(), len(x)),
		}
	}
	n := m.NumContacts
	p := PhysicalParams{
		Heights:     make([]float64, n),
		Stiffnesses: make([]float64, n),
	}
	span := m.HeightUpper - m.HeightLower
	for i := 0; i < n; i++ {
		p.Heights[i] = m.HeightLower + x[i]*span
		p.Stiffnesses[i] = m.StiffnessScale * x[n+i]
	}
	return p, nil
}

// Unmap is the inverse of Map. It is used to seed searches from known physical values.
func (m ParameterMapping) Unmap(p PhysicalParams) ([]float64, error) {
	n := m.NumContacts
	if len(p.Heights) != n || len(p.Stiffnesses) != n {
		return nil, &ConfigurationError{
			Field:  "parameters",
			Reason: fmt.Sprintf("expected %d heights and stiffnesses, got %d and %d", n, len(p.Heights), len(p.Stiffnesses)),
		}
	}
	x := make([]float64, 2*n)
	span := m.HeightUpper - m.HeightLower
	for i := 0; i < n; i++ {
		x[i] = (p.Heights[i] - m.HeightLower) / span
		x[n+i] = p.Stiffnesses[i] / m.StiffnessScale
	}
	return x, nil
}
