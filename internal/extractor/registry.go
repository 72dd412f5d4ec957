package extractor

import "strings"

// joinKindRegistry holds the join kinds the query engine accepts and the
// aliases that map onto them
type joinKindRegistry struct {
	kinds map[string]string
}

// newJoinKindRegistry creates and initializes the join kind registry
func newJoinKindRegistry() *joinKindRegistry {
	r := &joinKindRegistry{
		kinds: make(map[string]string),
	}
	r.initializeKinds()
	return r
}

// normalize lowercases kind and resolves aliases. known is false for kinds
// outside the vocabulary; those come back lowercased only.
func (r *joinKindRegistry) normalize(kind string) (string, bool) {
	lower := strings.ToLower(kind)
	if canonical, exists := r.kinds[lower]; exists {
		return canonical, true
	}
	return lower, false
}

// register adds a join kind and its aliases to the registry
func (r *joinKindRegistry) register(kind string, aliases ...string) {
	r.kinds[kind] = kind
	for _, alias := range aliases {
		r.kinds[alias] = kind
	}
}

// initializeKinds populates the registry with every kind join accepts
func (r *joinKindRegistry) initializeKinds() {
	r.register("innerunique")
	r.register("inner")
	r.register("leftouter")
	r.register("rightouter")
	r.register("fullouter")
	r.register("leftsemi")
	r.register("rightsemi")
	r.register("leftanti", "anti", "leftantisemi")
	r.register("rightanti", "rightantisemi")
}
