package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Artifact file names inside a subject directory. File presence is the only
// authoritative state signal for the pipeline; there is no separate status field.
const (
	JustTextFile       = "just_text.json"
	DayResultsFile     = "vm_results.json"
	WeeklyResultsFile  = "weekly_vm_results.json"
	MontageResultsFile = "montage_vm_results.json"
	MontageDirName     = "montage"
	MontageEventsFile  = "events.json"
	PrefetchStatusFile = "prefetch.json"
	VideoFile          = "ai-video.mp4"
	VideoResultsFile   = "video_post_results.json"

	daySuffix = "-events.json"
)

// Store is the directory-per-subject job store rooted at a single output dir.
// All components share it; coordination is purely existence- and mtime-based.
type Store struct {
	Root string
}

func New(root string) *Store { return &Store{Root: root} }

// EnsureRoot creates the output directory if it does not exist yet.
func (s *Store) EnsureRoot() error {
	return os.MkdirAll(s.Root, 0o755)
}

// ListSubjects returns the subject directory names under the root. Subjects are
// identified by their npub-prefixed directory name.
func (s *Store) ListSubjects() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	var subjects []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "npub") {
			subjects = append(subjects, e.Name())
		}
	}
	sort.Strings(subjects)
	return subjects, nil
}

func (s *Store) SubjectDir(npub string) string { return filepath.Join(s.Root, npub) }
func (s *Store) MontageDir(npub string) string {
	return filepath.Join(s.Root, npub, MontageDirName)
}

func (s *Store) JustTextPath(npub string) string {
	return filepath.Join(s.Root, npub, JustTextFile)
}
func (s *Store) DayResultsPath(npub string) string {
	return filepath.Join(s.Root, npub, DayResultsFile)
}
func (s *Store) WeeklyResultsPath(npub string) string {
	return filepath.Join(s.Root, npub, WeeklyResultsFile)
}
func (s *Store) MontageResultsPath(npub string) string {
	return filepath.Join(s.MontageDir(npub), MontageResultsFile)
}
func (s *Store) VideoPath(npub string) string {
	return filepath.Join(s.MontageDir(npub), VideoFile)
}
func (s *Store) VideoResultsPath(npub string) string {
	return filepath.Join(s.MontageDir(npub), VideoResultsFile)
}

// DayBundlePath returns the per-day raw event bundle path, e.g. 250601-events.json.
func (s *Store) DayBundlePath(npub, day string) string {
	return filepath.Join(s.Root, npub, day+daySuffix)
}

// DayBundles lists the per-day event bundle file names for a subject, sorted
// ascending by day token.
func (s *Store) DayBundles(npub string) ([]string, error) {
	entries, err := os.ReadDir(s.SubjectDir(npub))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), daySuffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// DayToken strips the bundle suffix from a day file name: "250601-events.json" -> "250601".
func DayToken(filename string) string { return strings.TrimSuffix(filename, daySuffix) }

// DayFileName is the inverse of DayToken.
func DayFileName(day string) string { return day + daySuffix }

// Exists reports whether the given path is present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ModTime returns the path's modification time, and false when it is absent.
func ModTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// ReadJSON decodes the whole file into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// WriteJSON replaces the file wholesale with an indented encoding of v. Writes
// are whole-file: downstream watchers must never observe a partially written
// artifact under a concurrent read.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
