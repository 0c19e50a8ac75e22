package calibration

import (
	"errors"
	"testing"
)

func TestMapBounds(t *testing.T) {
	m := DefaultMapping(3)
	p, err := m.Map([]float64{0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	for i := 0; i < 3; i++ {
		if p.Heights[i] != DefaultHeightLower || p.Stiffnesses[i] != 0 {
			t.Fatalf("zeros should map to lower bounds, got %+v", p)
		}
	}

	p, err = m.Map([]float64{1, 1, 1, 1, 1, 1})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	for i := 0; i < 3; i++ {
		if p.Heights[i] != DefaultHeightUpper || p.Stiffnesses[i] != DefaultStiffnessScale {
			t.Fatalf("ones should map to upper bounds, got %+v", p)
		}
	}
}

func TestMapIsMonotonicPerCoordinate(t *testing.T) {
	m := DefaultMapping(2)
	base := []float64{0.2, 0.4, 0.6, 0.8}
	pBase, err := m.Map(base)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	for coord := 0; coord < 4; coord++ {
		prev := -1.0
		for _, v := range []float64{0, 0.25, 0.5, 0.75, 1} {
			x := append([]float64(nil), base...)
			x[coord] = v
			p, err := m.Map(x)
			if err != nil {
				t.Fatalf("Map: %v", err)
			}
			var got float64
			if coord < 2 {
				got = p.Heights[coord]
			} else {
				got = p.Stiffnesses[coord-2]
			}
			if prev != -1 && got <= prev {
				t.Fatalf("coordinate %d not increasing: %v after %v", coord, got, prev)
			}
			prev = got
			// other coordinates are untouched
			for other := 0; other < 2; other++ {
				if other != coord && p.Heights[other] != pBase.Heights[other] {
					t.Fatalf("changing coordinate %d moved height %d", coord, other)
				}
			}
		}
	}
}

func TestMapRejectsWrongLength(t *testing.T) {
	_, err := DefaultMapping(2).Map([]float64{0.5, 0.5, 0.5})
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if !IsFatal(err) {
		t.Fatal("configuration errors must be fatal")
	}
}

func TestUnmapInvertsMap(t *testing.T) {
	m := DefaultMapping(2)
	x := []float64{0.1, 0.9, 0.25, 0.75}
	p, err := m.Map(x)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	back, err := m.Unmap(p)
	if err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	for i := range x {
		if d := back[i] - x[i]; d > 1e-12 || d < -1e-12 {
			t.Fatalf("component %d: got %v want %v", i, back[i], x[i])
		}
	}
}

func TestMappingValidate(t *testing.T) {
	tests := []struct {
		name string
		m    ParameterMapping
	}{
		{"no contacts", ParameterMapping{NumContacts: 0, HeightLower: 0, HeightUpper: 1, StiffnessScale: 1}},
		{"inverted bounds", ParameterMapping{NumContacts: 1, HeightLower: 1, HeightUpper: 0, StiffnessScale: 1}},
		{"zero scale", ParameterMapping{NumContacts: 1, HeightLower: 0, HeightUpper: 1, StiffnessScale: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.m.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := DefaultMapping(6).Validate(); err != nil {
		t.Fatalf("default mapping should be valid: %v", err)
	}
	if DefaultMapping(6).Dim() != 12 {
		t.Fatalf("expected dim 12")
	}
}
