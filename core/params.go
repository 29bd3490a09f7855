// Package core provides parameter sets and validation for qHybrid.
package core

import (
	"math"

	"github.com/pkg/errors"

	qhybrid "github.com/BackendStack21/qhybrid-go"
)

// GoppaFieldDegree is the only field degree the McEliece component implements.
const GoppaFieldDegree = 12

// MaxFailureLog2 is the largest accepted log2 decoding-failure probability
// for the lattice component.
const MaxFailureLog2 = -128.0

// Level128Params is the parameter set for 128-bit post-quantum security.
var Level128Params = qhybrid.HybridParams{
	Level: qhybrid.Level128,
	LWE: qhybrid.LWEParams{
		N:    640,
		NBar: 8,
		LogQ: 15,
		B:    2,
		Eta:  4,
	},
	McEliece: qhybrid.McElieceParams{
		M: GoppaFieldDegree,
		N: 2048,
		T: 32,
	},
}

// Level256Params is the parameter set for 256-bit post-quantum security.
var Level256Params = qhybrid.HybridParams{
	Level: qhybrid.Level256,
	LWE: qhybrid.LWEParams{
		N:    976,
		NBar: 8,
		LogQ: 16,
		B:    4,
		Eta:  4,
	},
	McEliece: qhybrid.McElieceParams{
		M: GoppaFieldDegree,
		N: 3488,
		T: 64,
	},
}

// GetParams returns the parameter set for the given security level.
func GetParams(level qhybrid.SecurityLevel) (qhybrid.HybridParams, error) {
	switch level {
	case qhybrid.Level128:
		return Level128Params, nil
	case qhybrid.Level256:
		return Level256Params, nil
	default:
		return qhybrid.HybridParams{}, errors.Wrapf(qhybrid.ErrInvalidParams, "unknown security level %q", level)
	}
}

// ParseLevel maps user-facing spellings ("128", "QH-256", ...) to a level.
func ParseLevel(s string) (qhybrid.SecurityLevel, error) {
	switch s {
	case "128", "QH-128", "QH_128":
		return qhybrid.Level128, nil
	case "256", "QH-256", "QH_256":
		return qhybrid.Level256, nil
	default:
		return "", errors.Wrapf(qhybrid.ErrInvalidParams, "unknown security level %q", s)
	}
}

// ValidateParams checks a parameter set for consistency and for a negligible
// lattice decoding-failure probability.
func ValidateParams(params qhybrid.HybridParams) error {
	if err := ValidateLWEParams(params.LWE); err != nil {
		return err
	}
	return ValidateMcElieceParams(params.McEliece)
}

// ValidateLWEParams validates the lattice component parameters.
func ValidateLWEParams(p qhybrid.LWEParams) error {
	invalid := func(msg string) error {
		return errors.Wrap(qhybrid.ErrInvalidParams, "lwe: "+msg)
	}
	if p.N <= 0 || p.NBar <= 0 {
		return invalid("dimensions must be positive")
	}
	if p.LogQ < 2 || p.LogQ > 16 {
		return invalid("log q must be in [2, 16]")
	}
	if p.B < 1 || p.B >= p.LogQ {
		return invalid("bits per coefficient must be in [1, log q)")
	}
	if (p.NBar*p.NBar*p.B)%8 != 0 {
		return invalid("message length must be a whole number of bytes")
	}
	if p.Eta < 1 || p.Eta > 8 {
		return invalid("eta must be in [1, 8]")
	}
	if LatticeFailureLog2(p) > MaxFailureLog2 {
		return invalid("decoding-failure probability is not negligible")
	}
	return nil
}

// ValidateMcElieceParams validates the code-based component parameters.
func ValidateMcElieceParams(p qhybrid.McElieceParams) error {
	invalid := func(msg string) error {
		return errors.Wrap(qhybrid.ErrInvalidParams, "mceliece: "+msg)
	}
	if p.M != GoppaFieldDegree {
		return invalid("field degree must be 12")
	}
	if p.T < 2 {
		return invalid("error weight must be at least 2")
	}
	if p.N >= 1<<p.M {
		return invalid("code length must be below the field size")
	}
	if p.N <= p.M*p.T {
		return invalid("code length must exceed m*t")
	}
	if p.N%8 != 0 || (p.M*p.T)%8 != 0 {
		return invalid("n and m*t must be multiples of 8")
	}
	return nil
}

// MessageBytes returns the length of the lattice message in bytes.
func MessageBytes(p qhybrid.LWEParams) int {
	return p.NBar * p.NBar * p.B / 8
}

// LatticeFailureLog2 returns an upper bound on log2 of the probability that
// lattice decapsulation decodes a different message.
//
// The decoded noise per coefficient is S'E - E'S + E'', a sum of 2N products
// of independent centered binomial samples plus one more sample, with variance
// 2N(eta/2)^2 + eta/2. Decoding is correct while the noise stays below
// q/2^(B+1). The Gaussian tail 2*exp(-t^2/(2*sigma^2)) is applied to each of
// the NBar^2 coefficients and a union bound taken.
func LatticeFailureLog2(p qhybrid.LWEParams) float64 {
	if p.N <= 0 || p.NBar <= 0 || p.Eta <= 0 || p.B >= p.LogQ {
		return 0
	}
	eta := float64(p.Eta)
	variance := 2*float64(p.N)*(eta/2)*(eta/2) + eta/2
	threshold := math.Ldexp(1, p.LogQ-p.B-1)
	perCoeff := 1 - threshold*threshold/(2*variance*math.Ln2)
	total := perCoeff + math.Log2(float64(p.NBar*p.NBar))
	if total > 0 {
		return 0
	}
	return total
}
