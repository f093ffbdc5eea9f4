package testutil

// FixedRunID generates the same run ID every time.
//
// Unlike engine.FixedGenerator which returns IDs in sequence, this generator
// always returns the same ID, so repeated runs of one scenario produce
// byte-identical event streams.
//
// Thread-safety: FixedRunID is stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator that always returns id.
func NewFixedRunID(id string) FixedRunID {
	return FixedRunID{id: id}
}

// Generate returns the fixed ID.
func (g FixedRunID) Generate() string {
	return g.id
}
