// Package domain holds the append-only record types persisted by the
// Session Store (spec §3), one file per entity, matching this codebase's
// ancestry's per-entity model.go convention.
package domain

import "time"

// State is one of the session lifecycle states (spec §4.3).
type State string

const (
	StatePendingPrecheck State = "PendingPrecheck"
	StateReady           State = "Ready"
	StateActive          State = "Active"
	StatePaused          State = "Paused"
	StateCompleted       State = "Completed"
	StateEnded           State = "Ended"
)

// Terminal reports whether the state accepts no further mutation.
func (s State) Terminal() bool { return s == StateCompleted || s == StateEnded }

// Mode is a question mode selectable by the candidate.
type Mode string

const (
	ModeBehavioral Mode = "behavioral"
	ModeCoding     Mode = "coding"
	ModeScenario   Mode = "scenario"
	ModeRandom     Mode = "random"
)

// Difficulty is the requested difficulty curve.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyMedium   Difficulty = "medium"
	DifficultyHard     Difficulty = "hard"
	DifficultyAdaptive Difficulty = "adaptive"
)

// Config is the immutable-after-creation session configuration.
type Config struct {
	RoleCategory          string     `json:"roleCategory"`
	ExperienceYears       int        `json:"experienceYears"`
	ExperienceMonths      int        `json:"experienceMonths"`
	Modes                 []Mode     `json:"modes"`
	QuestionCount         int        `json:"questionCount"`
	DurationLimitMinutes  int        `json:"durationLimit"`
	Language              string     `json:"language"`
	Accent                string     `json:"accent,omitempty"`
	Difficulty            Difficulty `json:"difficulty"`
	JobDescription        string     `json:"jobDescription,omitempty"`
	ResumeRef             string     `json:"resumeRef,omitempty"`
	CompanyTargets        []string   `json:"companyTargets"`
	IncludeCuratedSources bool       `json:"includeCuratedQuestions"`
	AllowAIGenerated      bool       `json:"allowAIGenerated"`
	MCQ                   bool       `json:"mcq"`
	FIB                   bool       `json:"fib"`
	ConsentRecording      bool       `json:"consentRecording"`
	ConsentAntiCheat      bool       `json:"consentAntiCheat"`
	ConsentTimestamp      time.Time  `json:"consentTimestamp"`
}

// Validate checks the range/presence invariants spec §3 requires at creation.
func (c Config) Validate() error {
	switch {
	case c.RoleCategory == "":
		return errField("roleCategory", "required")
	case c.QuestionCount < 5 || c.QuestionCount > 20:
		return errField("questionCount", "must be between 5 and 20")
	case c.DurationLimitMinutes < 15 || c.DurationLimitMinutes > 90:
		return errField("durationLimit", "must be between 15 and 90")
	case c.Language == "":
		return errField("language", "required")
	case !validDifficulty(c.Difficulty):
		return errField("difficulty", "must be one of easy|medium|hard|adaptive")
	case len(c.Modes) == 0:
		return errField("modes", "at least one mode required")
	case !c.ConsentRecording || !c.ConsentAntiCheat:
		return errField("consent", "both consent flags are required")
	case c.ConsentTimestamp.IsZero():
		return errField("consentTimestamp", "required")
	}
	for _, m := range c.Modes {
		if !validMode(m) {
			return errField("modes", "unknown mode "+string(m))
		}
	}
	return nil
}

func validDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyAdaptive:
		return true
	}
	return false
}

func validMode(m Mode) bool {
	switch m {
	case ModeBehavioral, ModeCoding, ModeScenario, ModeRandom:
		return true
	}
	return false
}

type fieldError struct{ field, reason string }

func (e fieldError) Error() string { return e.field + ": " + e.reason }
func errField(field, reason string) error { return fieldError{field, reason} }

// Session is the root record; all other records reference its ID.
type Session struct {
	ID     string
	Owner  string
	Config Config

	State            State
	AskedCount       int
	AnsweredCount    int
	StrikeMinorCount int
	StrikeMajorCount int
	TailSeq          int64
	TailHash         string

	// TokenGeneration is bumped on every transition out of Active; it is
	// carried as the gen claim of every session-bound token minted for the
	// session, so tokens from a prior generation fail verification
	// immediately (spec §4.3).
	TokenGeneration int64

	CreatedAt   time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
}

// CanWrite reports whether question/answer/event writes are currently accepted.
func (s *Session) CanWrite() bool { return !s.State.Terminal() }
