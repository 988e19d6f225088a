package aiproxy

import (
	"hash/fnv"

	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
)

// SelectMode picks the mode for the question at the given slot ordinal
// (0-indexed), per spec §4.5: when the configured mode list contains
// random, sample from the other configured modes with a per-session seed
// so the sequence is reproducible given the session id; otherwise rotate
// among the explicit modes in declaration order.
func SelectMode(cfg domain.Config, sessionID string, slot int) domain.Mode {
	var others []domain.Mode
	hasRandom := false
	for _, m := range cfg.Modes {
		if m == domain.ModeRandom {
			hasRandom = true
			continue
		}
		others = append(others, m)
	}
	if !hasRandom {
		if len(cfg.Modes) == 0 {
			return domain.ModeBehavioral
		}
		return cfg.Modes[slot%len(cfg.Modes)]
	}
	if len(others) == 0 {
		others = []domain.Mode{domain.ModeBehavioral, domain.ModeCoding, domain.ModeScenario}
	}
	idx := int(sessionSeed(sessionID, slot) % uint64(len(others)))
	return others[idx]
}

// sessionSeed derives a deterministic per-(session, slot) value: same
// session id and slot always produce the same pick, without relying on
// process-global random state.
func sessionSeed(sessionID string, slot int) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	sum := h.Sum64()
	// mix in the slot with a large odd multiplier (splitmix64-style) so
	// consecutive slots don't trivially alias into the same bucket.
	sum += uint64(slot+1) * 0x9E3779B97F4A7C15
	sum ^= sum >> 33
	sum *= 0xff51afd7ed558ccd
	sum ^= sum >> 33
	return sum
}
