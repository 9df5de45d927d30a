package cvm

import (
	"encoding/json"
	"strings"
)

// Reply is the normalized form of a tool's textual result.
type Reply struct {
	Summary string
	EventID *string
}

// ParseReply tries the tool text as structured data first: a JSON object with
// a summary (or response) field and an optional eventID. Anything that does
// not parse that way is treated as the summary verbatim, with no event id.
func ParseReply(text string) Reply {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var obj struct {
			Summary  string `json:"summary"`
			Response string `json:"response"`
			EventID  string `json:"eventID"`
		}
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			summary := obj.Summary
			if summary == "" {
				summary = obj.Response
			}
			if summary != "" {
				r := Reply{Summary: summary}
				if obj.EventID != "" {
					id := obj.EventID
					r.EventID = &id
				}
				return r
			}
		}
	}
	return Reply{Summary: text}
}
