package search

import "fmt"

// Policy holds the dynamic-alpha and guard knobs for hybrid
// retrieval. Alphas are fusion weights (0 pure keyword, 1 pure
// vector); the probe caps the requested alpha downward, never up.
type Policy struct {
	// AlphaMultiStrongMax caps alpha when strong keyword hits span
	// multiple files: the query names specific documents, so keyword
	// evidence should dominate.
	AlphaMultiStrongMax float64

	// AlphaSingleStrongMax caps alpha on a single strong keyword hit.
	AlphaSingleStrongMax float64

	// AlphaWeakHitMax caps alpha when the probe found only weak hits.
	AlphaWeakHitMax float64

	// AlphaNoHitMax caps alpha when the probe found nothing, leaving
	// near-pure vector search.
	AlphaNoHitMax float64

	// StrongScore is the minimum normalized probe score for a strong
	// hit (combined with a rare-token match).
	StrongScore float64

	// ProbeLimit bounds the preflight probe size.
	ProbeLimit int

	// FilenamePenalty is added to the distance of guard-mode hits
	// whose rare tokens match only the filename, not the content.
	FilenamePenalty float64

	// Distance cutoffs for hybrid results, by mode.
	DistanceCutGuard   float64 // guard on
	DistanceCutRare    float64 // rare tokens present, guard off
	DistanceCutDefault float64 // no rare tokens

	// FallbackDistance is the ceiling for the pure-semantic topic
	// fallback.
	FallbackDistance float64
}

// DefaultPolicy returns the production policy values.
func DefaultPolicy() Policy {
	return Policy{
		AlphaMultiStrongMax:  0.45,
		AlphaSingleStrongMax: 0.55,
		AlphaWeakHitMax:      0.30,
		AlphaNoHitMax:        0.10,
		StrongScore:          0.60,
		ProbeLimit:           3,
		FilenamePenalty:      0.04,
		DistanceCutGuard:     0.42,
		DistanceCutRare:      0.32,
		DistanceCutDefault:   0.34,
		FallbackDistance:     0.70,
	}
}

// Validate rejects structurally impossible policies.
func (p Policy) Validate() error {
	for name, v := range map[string]float64{
		"alpha_multi_strong_max":  p.AlphaMultiStrongMax,
		"alpha_single_strong_max": p.AlphaSingleStrongMax,
		"alpha_weak_hit_max":      p.AlphaWeakHitMax,
		"alpha_no_hit_max":        p.AlphaNoHitMax,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("policy %s out of range [0,1]: %v", name, v)
		}
	}
	if p.ProbeLimit <= 0 {
		return fmt.Errorf("policy probe_limit must be positive: %d", p.ProbeLimit)
	}
	if p.FilenamePenalty < 0 {
		return fmt.Errorf("policy filename_penalty must be non-negative: %v", p.FilenamePenalty)
	}
	return nil
}

// probeOutcome is what the preflight probe learned about keyword
// strength.
type probeOutcome struct {
	hits        int // probe results matching any query token
	strongHits  int // score >= StrongScore with a rare-token match
	strongFiles int // distinct filenames among strong hits
}

// classify applies the precedence ladder: multi-file strong beats
// single strong beats weak beats none. Returns the hit type, the
// capped alpha and whether the keyword guard is on.
func (p Policy) classify(outcome probeOutcome, baseAlpha float64) (HitType, float64, bool) {
	switch {
	case outcome.strongFiles >= 2:
		return HitMultiFileStrong, minFloat(baseAlpha, p.AlphaMultiStrongMax), true
	case outcome.strongHits > 0:
		return HitStrong, minFloat(baseAlpha, p.AlphaSingleStrongMax), false
	case outcome.hits > 0:
		return HitWeak, minFloat(baseAlpha, p.AlphaWeakHitMax), false
	default:
		return HitNone, minFloat(baseAlpha, p.AlphaNoHitMax), false
	}
}

// distanceCut picks the cutoff for the current mode.
func (p Policy) distanceCut(guardOn bool, hasRareTokens bool) float64 {
	switch {
	case guardOn:
		return p.DistanceCutGuard
	case hasRareTokens:
		return p.DistanceCutRare
	default:
		return p.DistanceCutDefault
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
