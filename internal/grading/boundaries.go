package grading

import (
	"fmt"
	"math"
)

type Method string

const (
	Relative Method = "relative"
	Absolute Method = "absolute"
)

// Cutoff is the lowest mark that earns Grade.
type Cutoff struct {
	Grade Grade   `json:"grade"`
	Min   float64 `json:"min"`
}

// Boundaries is the boundary set for one subject batch, ordered A+ down to D.
type Boundaries struct {
	Method   Method   `json:"method"`
	Cutoffs  []Cutoff `json:"cutoffs"`
	PoolSize int      `json:"pool_size"`

	// Relative grading statistics; zero for absolute grading.
	Mean  float64 `json:"mean,omitempty"`
	Sigma float64 `json:"sigma,omitempty"`
	RawD  float64 `json:"raw_d,omitempty"`

	Moderated bool     `json:"moderated,omitempty"`
	Floored   bool     `json:"floored,omitempty"`
	Capped    bool     `json:"capped,omitempty"`
	Notes     []string `json:"notes,omitempty"`
}

var absoluteTables = map[CourseType][]float64{
	Theory:    {90, 80, 72, 64, 56, 48, 40},
	Practical: {90, 80, 70, 62, 58, 54, 50},
}

// Min returns the cutoff for g, or NaN if g is not a boundary grade.
func (b Boundaries) Min(g Grade) float64 {
	for _, c := range b.Cutoffs {
		if c.Grade == g {
			return c.Min
		}
	}
	return math.NaN()
}

// D is the lowest passing cutoff.
func (b Boundaries) D() float64 { return b.Min(GradeD) }

// Lookup returns the first grade whose cutoff marks meet or exceed, or F.
func (b Boundaries) Lookup(marks float64) Grade {
	for _, c := range b.Cutoffs {
		if marks >= c.Min {
			return c.Grade
		}
	}
	return GradeF
}

// Map returns the cutoffs keyed by grade.
func (b Boundaries) Map() map[Grade]float64 {
	out := make(map[Grade]float64, len(b.Cutoffs))
	for _, c := range b.Cutoffs {
		out[c.Grade] = c.Min
	}
	return out
}

// ComputeBoundaries derives the seven cutoffs from the statistics pool.
// Pools of MinPoolSize or more use mean/sigma; smaller pools use the fixed table for the course type.
func ComputeBoundaries(pool []float64, cfg CourseConfig, mod Moderation) Boundaries {
	if len(pool) < MinPoolSize {
		return absoluteBoundaries(cfg, len(pool))
	}
	return relativeBoundaries(pool, cfg, mod)
}

func absoluteBoundaries(cfg CourseConfig, n int) Boundaries {
	table, ok := absoluteTables[cfg.Type]
	if !ok {
		table = absoluteTables[Theory]
	}
	b := Boundaries{Method: Absolute, PoolSize: n, Cutoffs: make([]Cutoff, len(boundaryOrder))}
	for i, g := range boundaryOrder {
		b.Cutoffs[i] = Cutoff{Grade: g, Min: table[i]}
	}
	b.Notes = append(b.Notes, fmt.Sprintf("batch size %d < %d, switched to absolute grading", n, MinPoolSize))
	return b
}

func relativeBoundaries(pool []float64, cfg CourseConfig, mod Moderation) Boundaries {
	x, sigma := populationStats(pool)
	rawD := x - 1.5*sigma
	p := cfg.PassMark()
	floor := cfg.FloorMark()

	b := Boundaries{Method: Relative, PoolSize: len(pool), Mean: x, Sigma: sigma, RawD: rawD}
	b.Notes = append(b.Notes, fmt.Sprintf("batch statistics: mean=%.2f sigma=%.2f n=%d", x, sigma, len(pool)))

	v := []float64{
		x + 1.5*sigma,
		x + sigma,
		x + 0.5*sigma,
		x,
		x - 0.5*sigma,
		x - sigma,
		rawD,
	}
	const iCPlus, iC, iD = 4, 5, 6

	switch {
	case rawD > p:
		b.Moderated = true
		if mod == ModerationRedistribute {
			v[iCPlus] = x - (x-p)/3
			v[iC] = x - 2*(x-p)/3
		}
		v[iD] = p
		b.Notes = append(b.Notes, fmt.Sprintf("moderation: raw D %.2f > pass mark %.2f, D capped at %.2f (%s)", rawD, p, p, mod))
	case rawD < floor:
		b.Floored = true
		delta := floor - rawD
		for i := range v {
			v[i] += delta
		}
		v[iD] = floor
		b.Notes = append(b.Notes, fmt.Sprintf("min cut-off protection: raw D %.2f < %.2f, curve shifted up by %.2f", rawD, floor, delta))
	}

	// Shifted cutoffs can land an ulp under the exact D; lift them so D stays exact.
	for i := len(v) - 2; i >= 0; i-- {
		if v[i] < v[i+1] {
			v[i] = v[i+1]
		}
	}
	// The A+ cap can leave A above A+ after a floor shift; clamp the lot to keep the order.
	for i := range v {
		if v[i] > cfg.TotalMax {
			v[i] = cfg.TotalMax
			b.Capped = true
		}
	}
	if b.Capped {
		b.Notes = append(b.Notes, fmt.Sprintf("upper bound protection: cutoffs capped at %.2f", cfg.TotalMax))
	}

	b.Cutoffs = make([]Cutoff, len(boundaryOrder))
	for i, g := range boundaryOrder {
		b.Cutoffs[i] = Cutoff{Grade: g, Min: v[i]}
	}
	return b
}

// populationStats returns the mean and population standard deviation (divisor n).
func populationStats(xs []float64) (mean, sigma float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}
