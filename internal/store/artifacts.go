package store

import "time"

// Event is a raw content record from the decentralized network, as submitted
// to the export endpoint and stored in the per-day bundles.
type Event struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig,omitempty"`
}

// JustTextEntry is one element of the flattened digest (just_text.json): one
// calendar day of concatenated text content.
type JustTextEntry struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Pubkey   string `json:"pubkey,omitempty"`
}

// DayResult is one element of the daily results array (vm_results.json).
// Exactly one of Response or Error is set; EventID stays null when the tool
// reply carried no event reference.
type DayResult struct {
	DayFile  string  `json:"dayFile"`
	Tool     string  `json:"tool"`
	Response string  `json:"response,omitempty"`
	Error    string  `json:"error,omitempty"`
	EventID  *string `json:"eventID"`
}

// SubjectRef names a subject in both encodings.
type SubjectRef struct {
	Npub string `json:"npub"`
	Hex  string `json:"hex,omitempty"`
}

// WeeklyResult is the weekly artifact (weekly_vm_results.json). On total
// failure only Error and Tool are populated.
type WeeklyResult struct {
	Tool     string      `json:"tool"`
	Subject  *SubjectRef `json:"subject,omitempty"`
	Response string      `json:"response,omitempty"`
	EventID  *string     `json:"eventID,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// MontageResult is the terminal montage trigger artifact
// (montage_vm_results.json): a full request/response audit record.
type MontageResult struct {
	API         string     `json:"api"`
	RecipeID    string     `json:"recipe_id"`
	SessionName string     `json:"session_name"`
	Subject     SubjectRef `json:"subject"`
	Dir         string     `json:"dir"`
	Prompt      string     `json:"prompt"`
	Response    any        `json:"response"`
}

// UploadResult records a successful blob upload.
type UploadResult struct {
	Server   string     `json:"server"`
	URL      string     `json:"url"`
	Tags     [][]string `json:"tags,omitempty"`
	Strategy string     `json:"strategy,omitempty"`
}

// RelayOutcome is one relay's publish result; unanimity is not required.
type RelayOutcome struct {
	Relay string `json:"relay"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NotePost records the announcement post and its per-relay outcomes.
type NotePost struct {
	EventID string         `json:"eventId"`
	Relays  []string       `json:"relays"`
	Results []RelayOutcome `json:"results"`
}

// VideoPostResult is the terminal video publish artifact
// (video_post_results.json), written on success and on failure alike.
type VideoPostResult struct {
	Npub       string        `json:"npub"`
	SubjectHex string        `json:"subjectHex,omitempty"`
	VideoPath  string        `json:"videoPath"`
	StartedAt  time.Time     `json:"startedAt"`
	Upload     *UploadResult `json:"upload,omitempty"`
	Post       *NotePost     `json:"post,omitempty"`
	Error      string        `json:"error,omitempty"`
	Stack      string        `json:"stack,omitempty"`
}

// PrefetchStatus records, per considered URL, whether the media was cached and
// why it was rejected otherwise (prefetch.json).
type PrefetchStatus struct {
	URL    string `json:"url"`
	File   string `json:"file,omitempty"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
}
