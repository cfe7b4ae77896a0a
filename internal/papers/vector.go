package papers

import (
	"fmt"
	"math"
	"math/bits"
)

// VariantKind selects the stored representation and with it the distance
// metric: L2 for float vectors, Hamming for packed bit vectors.
type VariantKind string

const (
	VariantFloat VariantKind = "float"
	VariantBit   VariantKind = "bit"
)

// Variant identifies one (model, representation) embedding combination.
// Exactly one variant is active for retrieval, selected by configuration.
type Variant struct {
	Name       string      `yaml:"name"`
	Model      string      `yaml:"model"`
	Kind       VariantKind `yaml:"kind"`
	Dimensions int         `yaml:"dimensions"`
}

// Validate checks the variant is fully specified.
func (v Variant) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("variant name is required")
	}
	if v.Model == "" {
		return fmt.Errorf("variant model is required")
	}
	if v.Kind != VariantFloat && v.Kind != VariantBit {
		return fmt.Errorf("variant kind must be %q or %q, got %q", VariantFloat, VariantBit, v.Kind)
	}
	if v.Dimensions <= 0 {
		return fmt.Errorf("variant dimensions must be positive")
	}
	return nil
}

// Vector is one embedding in the representation of its variant. Exactly one
// of Floats or Bits is populated.
type Vector struct {
	Floats []float32
	Bits   []byte // packed, most significant bit first
}

// IsZero reports whether the vector carries no data.
func (v Vector) IsZero() bool {
	return len(v.Floats) == 0 && len(v.Bits) == 0
}

// Distance computes the metric distance between two vectors of the given
// kind: Euclidean L2 for float, Hamming for bit.
func Distance(kind VariantKind, a, b Vector) float64 {
	if kind == VariantBit {
		return float64(HammingDistance(a.Bits, b.Bits))
	}
	return L2Distance(a.Floats, b.Floats)
}

// L2Distance is the Euclidean distance between two float vectors. Vectors of
// unequal length are treated as zero-padded.
func L2Distance(a, b []float32) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		var av, bv float64
		if i < len(a) {
			av = float64(a[i])
		}
		if i < len(b) {
			bv = float64(b[i])
		}
		d := av - bv
		sum += d * d
	}
	return math.Sqrt(sum)
}

// HammingDistance counts differing bits between two packed bit vectors.
func HammingDistance(a, b []byte) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var count int
	for i := 0; i < n; i++ {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		count += bits.OnesCount8(av ^ bv)
	}
	return count
}

// PackBits reduces a float vector to its sign bits, the packed form bit
// variants store. Non-negative components map to 1.
func PackBits(floats []float32) []byte {
	packed := make([]byte, (len(floats)+7)/8)
	for i, f := range floats {
		if f >= 0 {
			packed[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return packed
}

// Similarity converts a distance into the display score 1/(1+distance).
// Monotonic inverse transform, not a probability.
func Similarity(distance float64) float64 {
	return 1 / (1 + distance)
}
