package seller

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// defaultCategory is used when no keyword in the prompt matches.
const defaultCategory = "technology"

// categoryTable maps prompt keywords to image search categories. Scanned in
// order; the first keyword contained in the prompt wins.
var categoryTable = []struct {
	keyword  string
	category string
}{
	{"arbitrum", "blockchain,technology"},
	{"stylus", "abstract,technology"},
	{"blockchain", "network,technology"},
	{"ai", "artificial-intelligence,technology"},
	{"agent", "robot,technology"},
	{"logo", "abstract,design"},
	{"network", "network,technology"},
	{"smart contract", "code,technology"},
	{"payment", "finance,business"},
	{"decentralized", "network,abstract"},
}

// CategoryFor derives the image category from a free-text prompt by
// case-insensitive substring match against the keyword table.
func CategoryFor(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, entry := range categoryTable {
		if strings.Contains(lower, entry.keyword) {
			return entry.category
		}
	}
	return defaultCategory
}

// ImageURL produces the generated-content reference for a prompt. The actual
// generation backend is a placeholder: a seeded stock-photo URL.
func ImageURL(prompt string) string {
	seed := fmt.Sprintf("%d%s", time.Now().UnixNano(), prompt)
	return fmt.Sprintf("https://picsum.photos/seed/%s/1024/1024", url.PathEscape(seed))
}
