package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds the encryption and approximation settings shared by the CLIs.
type Config struct {
	LogN         int
	LogScale     int
	FirstModBits int
	Headroom     int

	Activation string
	Degree     int
	Dilation   float64
	Bound      float64
	Eps        float64
	Tol        float64

	// MaxLeaves is the leaf block per tree; 0 uses the largest tree.
	MaxLeaves int
}

// DefaultConfig mirrors the adult-income demo: a 2^14 ring, 28-bit scale and
// 37-bit outer primes, degree-16 sigmoid dilated by 16 on [-1, 1].
func DefaultConfig() Config {
	return Config{
		LogN:         14,
		LogScale:     28,
		FirstModBits: 37,
		Headroom:     0,
		Activation:   "sigmoid",
		Degree:       16,
		Dilation:     16,
		Bound:        1.0,
		Eps:          0.5,
		Tol:          1e-6,
	}
}

// ParseFloats parses a whitespace or comma separated list of floats.
func ParseFloats(s string) ([]float64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if config.LogN < 10 || config.LogN > 17 {
		return fmt.Errorf("logN must be in [10, 17], got %d", config.LogN)
	}
	if config.LogScale <= 0 || config.LogScale >= 61 {
		return fmt.Errorf("log scale must be in ]0, 61[, got %d", config.LogScale)
	}
	if config.FirstModBits <= config.LogScale || config.FirstModBits > 61 {
		return fmt.Errorf("first modulus must be wider than the scale and at most 61 bits, got %d", config.FirstModBits)
	}
	if config.Headroom < 0 {
		return fmt.Errorf("headroom must be non-negative")
	}
	if config.Activation != "sigmoid" && config.Activation != "tanh" {
		return fmt.Errorf("activation must be 'sigmoid' or 'tanh'")
	}
	if config.Degree < 1 {
		return fmt.Errorf("polynomial degree must be positive")
	}
	if config.Dilation <= 0 {
		return fmt.Errorf("dilation must be positive")
	}
	if config.Bound <= 0 {
		return fmt.Errorf("bound must be positive")
	}
	if config.Eps <= 0 || config.Eps >= 1 {
		return fmt.Errorf("matcher margin must be in ]0, 1[, got %g", config.Eps)
	}
	if config.MaxLeaves != 0 && config.MaxLeaves < 2 {
		return fmt.Errorf("max leaves must be 0 or at least 2, got %d", config.MaxLeaves)
	}
	if config.Tol < 0 {
		return fmt.Errorf("pruning tolerance must be non-negative")
	}
	return nil
}
