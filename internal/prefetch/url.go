package prefetch

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/otherstuff/craigd/internal/store"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// trailing punctuation that commonly clings to URLs embedded in free text
const trailingPunct = ".,!?;:)]}'\""

// ExtractURLs returns the union of absolute URLs referenced by the events:
// matches in free-text content plus any tag value shaped like an absolute URL.
// Duplicates are collapsed preserving first-seen order.
func ExtractURLs(events []store.Event) []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(raw string) {
		raw = strings.TrimRight(strings.TrimSpace(raw), trailingPunct)
		if raw == "" {
			return
		}
		if _, dup := seen[raw]; dup {
			return
		}
		seen[raw] = struct{}{}
		urls = append(urls, raw)
	}
	for _, ev := range events {
		for _, m := range urlPattern.FindAllString(ev.Content, -1) {
			add(m)
		}
		for _, tag := range ev.Tags {
			for _, v := range tag {
				if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
					add(v)
				}
			}
		}
	}
	return urls
}

// Fingerprint returns a deterministic hex digest of the URL string itself (not
// of the body), so a distinct URL always maps to the same stable name without
// downloading anything first.
func Fingerprint(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}
