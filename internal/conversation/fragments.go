package conversation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wolfman30/clinic-concierge/internal/manychat"
)

// SplitReply breaks a reply after every "?" that is followed by whitespace.
// Empty parts are dropped and anything past the fourth part is folded into
// the fourth.
func SplitReply(reply string) []string {
	var (
		parts []string
		start int
	)
	for i := 0; i < len(reply); {
		r, size := utf8.DecodeRuneInString(reply[i:])
		i += size
		if r != '?' || i >= len(reply) {
			continue
		}
		next, _ := utf8.DecodeRuneInString(reply[i:])
		if !unicode.IsSpace(next) {
			continue
		}
		parts = appendPart(parts, reply[start:i])
		for i < len(reply) {
			ws, n := utf8.DecodeRuneInString(reply[i:])
			if !unicode.IsSpace(ws) {
				break
			}
			i += n
		}
		start = i
	}
	parts = appendPart(parts, reply[start:])

	if len(parts) > manychat.MaxReplyParts {
		last := manychat.MaxReplyParts - 1
		parts[last] = strings.Join(parts[last:], " ")
		parts = parts[:manychat.MaxReplyParts]
	}
	return parts
}

func appendPart(parts []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		parts = append(parts, s)
	}
	return parts
}
