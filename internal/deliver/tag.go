package deliver

import (
	"fmt"
	"regexp"
	"strconv"
)

// tagPattern matches the provenance tag embedded in fallback copies, e.g.
// "[src -1000000123456 #55]". It is anchored to a line of its own so body
// text containing brackets cannot alias it.
var tagPattern = regexp.MustCompile(`(?m)^\[src (-?\d+) #(\d+)\]$`)

// FormatTag renders the provenance tag for a source chat and message id.
func FormatTag(source int64, messageID int) string {
	return fmt.Sprintf("[src %d #%d]", source, messageID)
}

// ParseTag extracts (source, message id) from a fallback copy body. Returns
// ok=false when no well-formed tag is present.
func ParseTag(text string) (source int64, messageID int, ok bool) {
	m := tagPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	source, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	messageID, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return source, messageID, true
}
