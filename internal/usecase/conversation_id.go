package usecase

import (
	"strings"

	"chatsync/pkg/errors"
)

// Stored conversations are keyed "<a>_<b>" with a <= b.
const conversationSeparator = "_"

// ConversationID derives the key of the conversation between a and b. The
// result does not depend on argument order.
func ConversationID(a, b string) (string, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", errors.BadRequest("Participant is required", nil)
	}
	if a == b {
		return "", errors.BadRequest("Cannot start a conversation with yourself", nil)
	}
	if a > b {
		a, b = b, a
	}
	return a + conversationSeparator + b, nil
}
