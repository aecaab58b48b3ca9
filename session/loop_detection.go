package session

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/martinemde/oxbot/llm"
)

// proposalSignature computes a deterministic signature for a code proposal
// (language + hash of the trimmed source).
func proposalSignature(language, code string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return fmt.Sprintf("%s:%x", language, h[:8])
}

// extractProposalSignatures extracts signatures from the most recent code
// proposals in the history.
func extractProposalSignatures(history []Turn, count int) []string {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < count; i-- {
		turn := history[i]
		if turn.Role != llm.RoleAssistant {
			continue
		}
		if lang, code, ok := turn.Code(); ok {
			sigs = append(sigs, proposalSignature(lang, code))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop checks whether the last windowSize code proposals follow a
// repeating pattern of length 1, 2, or 3. A pattern must repeat at least
// twice inside the window to count.
func DetectLoop(history []Turn, windowSize int) bool {
	if windowSize < 2 {
		return false
	}
	sigs := extractProposalSignatures(history, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3 && patternLen*2 <= windowSize; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}

	return false
}
