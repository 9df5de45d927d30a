package cvm

import "strings"

// ResolveTool picks the tool to invoke from the advertised set. Preference
// order: the preferred name when advertised, then the first advertised name
// containing one of the hints (case-insensitive substring), then the first
// advertised name. With nothing advertised the preferred name is returned
// unchanged so a call can still be attempted.
func ResolveTool(available []Tool, preferred string, hints ...string) string {
	if len(available) == 0 {
		return preferred
	}
	for _, t := range available {
		if t.Name == preferred {
			return preferred
		}
	}
	for _, hint := range hints {
		hint = strings.ToLower(hint)
		for _, t := range available {
			if strings.Contains(strings.ToLower(t.Name), hint) {
				return t.Name
			}
		}
	}
	return available[0].Name
}

// AccessToolHints are the fallback name fragments for the access-check tool,
// tried in order when the configured name is not advertised.
var AccessToolHints = []string{"cashu_access", "cashu", "redeem", "access", "auth", "check"}
