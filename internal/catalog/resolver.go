package catalog

import (
	"math"

	"github.com/agext/levenshtein"
)

// Method names the resolution stage that produced a match
type Method string

const (
	MethodExact       Method = "exact"
	MethodTokenSubset Method = "token_subset"
	MethodSimilarity  Method = "similarity"
	MethodNone        Method = "none"
)

// Resolution is the outcome of resolving a free-text name against catalog
// entries. A miss is a normal outcome: NeedsCreation is set and EntryID is
// empty.
type Resolution struct {
	EntryID       string  `json:"entry_id,omitempty"`
	EntryName     string  `json:"entry_name,omitempty"`
	Kind          Kind    `json:"kind,omitempty"`
	Confidence    float64 `json:"confidence"`
	Method        Method  `json:"method"`
	NeedsCreation bool    `json:"needs_creation"`
}

// NameResolver resolves a name against an ordered list of candidates.
// Implementations must be pure functions of their inputs.
type NameResolver interface {
	Resolve(name string, candidates []Entry) Resolution
}

// ChainResolver tries exact, token-subset and edit-distance matching in that
// order.
type ChainResolver struct {
	// TokenSubsetConfidence is reported for token-subset matches
	TokenSubsetConfidence float64
	// MinSimilarity is the lowest similarity ratio accepted as a match
	MinSimilarity float64
}

// NewChainResolver creates a ChainResolver with the default confidence floors
func NewChainResolver() *ChainResolver {
	return &ChainResolver{
		TokenSubsetConfidence: 0.85,
		MinSimilarity:         0.6,
	}
}

// Resolve implements NameResolver
func (c *ChainResolver) Resolve(name string, candidates []Entry) Resolution {
	needle := Normalize(name)
	if needle == "" || len(candidates) == 0 {
		return Resolution{Method: MethodNone, NeedsCreation: true}
	}

	for _, e := range candidates {
		if Normalize(e.Name) == needle {
			return resolved(e, 1.0, MethodExact)
		}
	}

	// Among token-subset matches, the candidate adding the fewest words wins.
	needleTokens := Tokens(name)
	best, bestExtra := -1, math.MaxInt
	for i, e := range candidates {
		extra, ok := tokenSubset(needleTokens, Tokens(e.Name))
		if ok && extra < bestExtra {
			best, bestExtra = i, extra
		}
	}
	if best >= 0 {
		return resolved(candidates[best], c.TokenSubsetConfidence, MethodTokenSubset)
	}

	bestScore := 0.0
	for i, e := range candidates {
		score := levenshtein.Similarity(needle, Normalize(e.Name), nil)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	bestScore = math.Round(bestScore*1000) / 1000
	if best >= 0 && bestScore >= c.MinSimilarity {
		return resolved(candidates[best], bestScore, MethodSimilarity)
	}
	return Resolution{Confidence: bestScore, Method: MethodNone, NeedsCreation: true}
}

func resolved(e Entry, confidence float64, method Method) Resolution {
	return Resolution{
		EntryID:    e.ID,
		EntryName:  e.Name,
		Kind:       e.Kind,
		Confidence: confidence,
		Method:     method,
	}
}

// tokenSubset reports whether every word of the shorter list appears in the
// longer one, and how many words the longer one adds.
func tokenSubset(a, b []string) (int, bool) {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return 0, false
	}
	set := make(map[string]struct{}, len(longer))
	for _, t := range longer {
		set[t] = struct{}{}
	}
	for _, t := range shorter {
		if _, ok := set[t]; !ok {
			return 0, false
		}
	}
	return len(longer) - len(shorter), true
}

// Matcher resolves names against a snapshot through a NameResolver
type Matcher struct {
	resolver NameResolver
}

// NewMatcher creates a Matcher. A nil resolver selects the default chain.
func NewMatcher(resolver NameResolver) *Matcher {
	if resolver == nil {
		resolver = NewChainResolver()
	}
	return &Matcher{resolver: resolver}
}

// Match resolves name against the snapshot entries of the given kinds
func (m *Matcher) Match(name string, snap *Snapshot, kinds ...Kind) Resolution {
	return m.resolver.Resolve(name, snap.Entries(kinds...))
}
