package buyer

import (
	"regexp"
	"strconv"
	"strings"
)

// purchasePattern matches explicit purchase phrasings: "purchase 2",
// "buy 3", "service 1".
var purchasePattern = regexp.MustCompile(`(?i)\b(?:purchase|buy|service)\s*([0-9]+)\b`)

// ParseIntent resolves a chat message to a service id. A bare "yes" confirms
// the last referenced service. Returns false when the message carries no
// purchase intent; the core protocol only depends on this output shape.
func ParseIntent(message string, lastServiceID uint64) (uint64, bool) {
	if match := purchasePattern.FindStringSubmatch(message); match != nil {
		id, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil || id == 0 {
			return 0, false
		}
		return id, true
	}

	if strings.EqualFold(strings.TrimSpace(message), "yes") && lastServiceID != 0 {
		return lastServiceID, true
	}

	return 0, false
}
