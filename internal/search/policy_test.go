package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy_Valid(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
}

func TestPolicy_Validate_Rejects(t *testing.T) {
	p := DefaultPolicy()
	p.AlphaWeakHitMax = 1.5
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.ProbeLimit = 0
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.FilenamePenalty = -0.01
	assert.Error(t, p.Validate())
}

func TestPolicy_Classify_Precedence(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name      string
		outcome   probeOutcome
		wantType  HitType
		wantAlpha float64
		wantGuard bool
	}{
		{
			name:      "strong hits across two files",
			outcome:   probeOutcome{hits: 3, strongHits: 2, strongFiles: 2},
			wantType:  HitMultiFileStrong,
			wantAlpha: 0.45,
			wantGuard: true,
		},
		{
			name:      "single strong hit",
			outcome:   probeOutcome{hits: 2, strongHits: 1, strongFiles: 1},
			wantType:  HitStrong,
			wantAlpha: 0.55,
			wantGuard: false,
		},
		{
			name:      "weak hits only",
			outcome:   probeOutcome{hits: 2},
			wantType:  HitWeak,
			wantAlpha: 0.30,
			wantGuard: false,
		},
		{
			name:      "no keyword evidence",
			outcome:   probeOutcome{},
			wantType:  HitNone,
			wantAlpha: 0.10,
			wantGuard: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hitType, alpha, guard := p.classify(tt.outcome, 0.9)
			assert.Equal(t, tt.wantType, hitType)
			assert.InDelta(t, tt.wantAlpha, alpha, 1e-9)
			assert.Equal(t, tt.wantGuard, guard)
		})
	}
}

func TestPolicy_Classify_CapsDownwardOnly(t *testing.T) {
	p := DefaultPolicy()

	// A base alpha already below the cap survives untouched.
	_, alpha, _ := p.classify(probeOutcome{strongHits: 2, strongFiles: 2}, 0.2)
	assert.InDelta(t, 0.2, alpha, 1e-9)
}

func TestPolicy_DistanceCut(t *testing.T) {
	p := DefaultPolicy()
	assert.InDelta(t, 0.42, p.distanceCut(true, true), 1e-9)
	assert.InDelta(t, 0.42, p.distanceCut(true, false), 1e-9)
	assert.InDelta(t, 0.32, p.distanceCut(false, true), 1e-9)
	assert.InDelta(t, 0.34, p.distanceCut(false, false), 1e-9)
}
