package envelope

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Kind says which envelope a plane supports.
type Kind int

const (
	// Convex planes lie below the vex surface; their max is the upper envelope.
	Convex Kind = iota
	// Concave planes lie above the cave surface; their min is the lower envelope.
	Concave
)

func (k Kind) String() string {
	switch k {
	case Convex:
		return "convex"
	case Concave:
		return "concave"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Plane is the tangent affine function slope·p + intercept of the vex or
// cave surface at one sampled grid position.
type Plane struct {
	Slope     []float64
	Intercept float64
	Kind      Kind
	// Source is the grid index the plane was built at.
	Source int
}

// At evaluates the affine function at p.
func (pl Plane) At(p []float64) float64 {
	return floats.Dot(pl.Slope, p) + pl.Intercept
}

// TangentPlane builds the plane through (p, total) with the given slope:
// intercept = total - slope·p. slope is copied.
func TangentPlane(p, slope []float64, total float64, kind Kind, source int) Plane {
	return Plane{
		Slope:     append([]float64(nil), slope...),
		Intercept: total - floats.Dot(slope, p),
		Kind:      kind,
		Source:    source,
	}
}

// EnvelopeSet holds the retained convex and concave planes, ordered by
// source index.
type EnvelopeSet struct {
	Convex  []Plane
	Concave []Plane
}

// Planes returns the sequence of the given kind.
func (s *EnvelopeSet) Planes(kind Kind) []Plane {
	if kind == Concave {
		return s.Concave
	}
	return s.Convex
}

// Len returns the number of planes per kind.
func (s *EnvelopeSet) Len() int {
	return len(s.Convex)
}

// Extract builds the tangent planes at every selected grid position.
// Positions outside the selection produce no planes.
func Extract(acc *Accumulation, grid *Grid, sel *Selection) *EnvelopeSet {
	set := &EnvelopeSet{
		Convex:  make([]Plane, 0, sel.Len()),
		Concave: make([]Plane, 0, sel.Len()),
	}
	p := make([]float64, grid.Dims())
	for i := 0; i < acc.Len(); i++ {
		if !sel.Contains(i) {
			continue
		}
		grid.Position(p, i)
		set.Convex = append(set.Convex, TangentPlane(p, acc.VexSlopeAt(i), acc.Vex[i], Convex, i))
		set.Concave = append(set.Concave, TangentPlane(p, acc.CaveSlopeAt(i), acc.Cave[i], Concave, i))
	}
	return set
}
