package testutil

// FixedIDGenerator returns the same lease ID every time.
//
// Leases normally carry UUIDv7 identifiers; tests that assert on conflict
// messages or log output use a fixed one instead.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator for id. If id is empty,
// Generate() returns "test-lease".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-lease"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
//
// Implements access.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
