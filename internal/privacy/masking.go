package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"campusguard/internal/constants"
)

// MaskUserID masks a user identifier showing only its tail.
// Example: "student-2841" -> "********2841"
func MaskUserID(userID string) string {
	if userID == "" {
		return ""
	}
	keep := constants.DefaultIDMaskLength
	if len(userID) <= keep {
		return strings.Repeat("*", len(userID))
	}
	return strings.Repeat("*", len(userID)-keep) + userID[len(userID)-keep:]
}

// MaskUserIDs masks a list of user identifiers.
func MaskUserIDs(userIDs []string) []string {
	masked := make([]string, len(userIDs))
	for i, id := range userIDs {
		masked[i] = MaskUserID(id)
	}
	return masked
}

// ContentDigest returns a short stable digest of message content for log
// correlation. Raw content never appears in logs; the digest lets an
// operator tie log lines to an audit row without seeing the text.
func ContentDigest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:12]
}

// SummarizeKeywords reports how many keywords were flagged without
// logging the terms themselves.
func SummarizeKeywords(keywords []string) int {
	return len(keywords)
}
