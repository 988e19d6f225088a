package domain

import "time"

// EventType enumerates the anti-cheat signals a browser client reports.
type EventType string

const (
	EventFSExit            EventType = "FS_EXIT"
	EventFSReady           EventType = "FS_READY"
	EventTabSwitch         EventType = "TAB_SWITCH"
	EventFaceMissing       EventType = "FACE_MISSING"
	EventScreenshotAttempt EventType = "SCREENSHOT_ATTEMPT"
	EventMultiFace         EventType = "MULTI_FACE"
	EventBGVoice           EventType = "BG_VOICE"
	EventBlur              EventType = "BLUR"
)

// AntiCheatEvent is one link in a session's strictly monotonic hash chain
// (spec §3, §4.4). Immutable once accepted.
type AntiCheatEvent struct {
	SessionID string
	Seq       int64
	PrevHash  string
	Type      EventType
	Details   map[string]interface{}
	Timestamp time.Time
}

// Severity is a strike's severity tier.
type Severity string

const (
	SeverityMinor Severity = "minor"
	SeverityMajor Severity = "major"
)

// Action is the state-machine-facing action a strike resulted in.
type Action string

const (
	ActionNone  Action = "none"
	ActionPause Action = "pause"
	ActionEnd   Action = "end"
)

// Strike is a derived, immutable record produced by the Anti-Cheat Engine.
type Strike struct {
	ID             string
	SessionID      string
	Severity       Severity
	Type           EventType
	TriggeringSeq  int64
	Action         Action
	CreatedAt      time.Time
}
