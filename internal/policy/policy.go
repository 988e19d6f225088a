// Package policy holds the declarative strike-rule table and scoring
// rubric: lookups, not dispatch. Grounded on the declarative, data-first
// configuration-table style this codebase's ancestry uses for its own
// service-descriptor tables.
package policy

import "github.com/Alpha-ashu/Candidate-Experience/internal/domain"

// Rule describes how one anti-cheat event type escalates. Minor-severity
// rules never end a session directly: repeated minors accumulate toward
// MinorAutoPauseThreshold across both minor event types, at which point the
// session auto-pauses. Major-severity rules escalate per event type: a
// type either ends the session on its very first occurrence, warns (or
// arms a rescindable pause countdown) before ending on a later one, or
// never ends on its own.
type Rule struct {
	Type            domain.EventType
	Severity        domain.Severity
	ArmsCountdown   bool              // first occurrence pauses with a rescindable countdown instead of ending/warning
	Rescinds        domain.EventType  // event type that cancels a pending countdown for this rule
	EndOnOccurrence int               // 1-indexed occurrence count that ends the session; 0 = never ends on its own
}

// MinorAutoPauseThreshold is the combined minor-strike count (spec §4.4)
// that auto-pauses a session regardless of which minor event type tipped
// it over.
const MinorAutoPauseThreshold = 3

// AutoPauseCountdown is the window an auto-pause has to be rescinded
// before escalating to auto-end (spec §4.4, §5).
const AutoPauseCountdown = 10 // seconds

// Table is the strike taxonomy of spec §4.4, loaded once at start-up.
var Table = map[domain.EventType]Rule{
	domain.EventFaceMissing: {
		Type: domain.EventFaceMissing, Severity: domain.SeverityMinor,
	},
	domain.EventBlur: {
		Type: domain.EventBlur, Severity: domain.SeverityMinor,
	},
	domain.EventFSExit: {
		Type: domain.EventFSExit, Severity: domain.SeverityMajor,
		ArmsCountdown: true, Rescinds: domain.EventFSReady, EndOnOccurrence: 2,
	},
	domain.EventTabSwitch: {
		Type: domain.EventTabSwitch, Severity: domain.SeverityMajor,
		EndOnOccurrence: 2,
	},
	domain.EventScreenshotAttempt: {
		Type: domain.EventScreenshotAttempt, Severity: domain.SeverityMajor,
		EndOnOccurrence: 1,
	},
	domain.EventMultiFace: {
		Type: domain.EventMultiFace, Severity: domain.SeverityMajor,
		EndOnOccurrence: 1,
	},
	domain.EventBGVoice: {
		Type: domain.EventBGVoice, Severity: domain.SeverityMajor,
		EndOnOccurrence: 2,
	},
}

// RubricWeights are the sub-score weights used when synthesizing an
// overall score from SubScores.
type RubricWeights struct {
	Communication  float64
	Technical      float64
	ProblemSolving float64
}

// DefaultRubric is the weighting used by both the AI-backed and fallback
// summary paths, so the two stay comparable.
var DefaultRubric = RubricWeights{
	Communication:  0.3,
	Technical:      0.4,
	ProblemSolving: 0.3,
}

// Overall applies DefaultRubric to a SubScores, clamped to [0,100].
func Overall(s domain.SubScores) int {
	v := float64(s.Communication)*DefaultRubric.Communication +
		float64(s.Technical)*DefaultRubric.Technical +
		float64(s.ProblemSolving)*DefaultRubric.ProblemSolving
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return int(v + 0.5)
}
