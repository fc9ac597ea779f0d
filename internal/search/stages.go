package search

// Stage is a step of the per-request search state machine.
type Stage string

const (
	StageReceived            Stage = "RECEIVED"
	StageLocalMatched        Stage = "LOCAL_MATCHED"
	StageGenerationSkipped   Stage = "GENERATION_SKIPPED"
	StageGenerationAttempted Stage = "GENERATION_ATTEMPTED"
	StageMerged              Stage = "MERGED"
	StageLogged              Stage = "LOGGED"
	StageResponded           Stage = "RESPONDED"
)

// generationOutcome records what the generation step did.
type generationOutcome int

const (
	outcomeNotNeeded generationOutcome = iota
	outcomeDisabled
	outcomeBudgetExhausted
	outcomeCacheHit
	outcomeGenerated
	outcomeFallback
)

func (o generationOutcome) String() string {
	switch o {
	case outcomeNotNeeded:
		return "not_needed"
	case outcomeDisabled:
		return "disabled"
	case outcomeBudgetExhausted:
		return "budget_exhausted"
	case outcomeCacheHit:
		return "cache_hit"
	case outcomeGenerated:
		return "generated"
	case outcomeFallback:
		return "fallback"
	}
	return "unknown"
}

// attempted reports whether the generation pipeline produced recipes,
// whether from the cache, the backend or the fallback.
func (o generationOutcome) attempted() bool {
	return o == outcomeCacheHit || o == outcomeGenerated || o == outcomeFallback
}

func stageNames(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}
