package operation

// Equivalence lets instrumentation attach a custom notion of "same shared
// state key" to an operation, replacing the delegate-style equality
// comparer of the original source with a small capability interface
// (spec.md §9). When an operation carries no Equivalence, the reducer
// falls back to ordinary string equality.
type Equivalence interface {
	// Equal reports whether a and b should be treated as the same shared-state key.
	Equal(a, b string) bool

	// Hash returns a hash of key, for implementations that want to bucket keys.
	// The core never depends on a particular hash value; it is provided so
	// that an Equivalence can be used as a map key source by callers that
	// need one.
	Hash(key string) uint64
}

// stringEquivalence is the default fallback comparer: plain string equality.
type stringEquivalence struct{}

// Equal implements Equivalence using ==.
func (stringEquivalence) Equal(a, b string) bool { return a == b }

// Hash implements Equivalence with the FNV-1a 64-bit hash.
func (stringEquivalence) Hash(key string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= prime64
	}
	return h
}

// DefaultEquivalence is the package-wide string-equality fallback comparer.
var DefaultEquivalence Equivalence = stringEquivalence{}

// equalKeys compares a and b using cmp if non-nil, otherwise falls back to
// DefaultEquivalence. This is the single choke point the reducer uses so
// the fallback rule lives in one place (spec.md §4.4 step 5, §9).
func equalKeys(cmp Equivalence, a, b string) bool {
	if cmp != nil {
		return cmp.Equal(a, b)
	}
	return DefaultEquivalence.Equal(a, b)
}

// EqualKeys exports equalKeys for use by the reduce package without
// introducing an import cycle back into operation.
func EqualKeys(cmp Equivalence, a, b string) bool {
	return equalKeys(cmp, a, b)
}
