package voice

// Availability is an engine's self-report of which capabilities it can
// currently provide.
type Availability struct {
	Recognition bool
	Synthesis   bool
	// Details carries an engine-specific explanation, typically why a
	// capability is unavailable.
	Details string
}

// Voice describes a synthesis voice offered by an engine.
type Voice struct {
	ID          string
	Name        string
	LanguageTag string
}
