package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/otherstuff/craigd/internal/poster"
	"github.com/otherstuff/craigd/internal/prefetch"
	"github.com/otherstuff/craigd/internal/store"
	"github.com/otherstuff/craigd/internal/trigger"
)

// activityManifestNames are the accepted names for the montage activity
// manifest, tolerating naming drift between prefetcher versions.
var activityManifestNames = []string{"activity.json", "activities.json", "activitiy.json", store.MontageEventsFile}

// Montage watches for fresh weekly results and fires the remote montage
// build, provided the prefetched asset directory is usable.
type Montage struct {
	Store       *store.Store
	Trigger     *trigger.Client
	RecipeID    string
	SessionName string
	Started     time.Time
	Log         *log.Logger
}

func (m *Montage) Name() string { return "montage" }

func (m *Montage) Scan(ctx context.Context) ([]Job, error) {
	subjects, err := m.Store.ListSubjects()
	if err != nil {
		return nil, err
	}
	var jobs []Job
	for _, npub := range subjects {
		weekly := m.Store.WeeklyResultsPath(npub)
		mtime, ok := store.ModTime(weekly)
		if !ok {
			continue
		}
		// Only weekly results written after this process started are picked
		// up; a restart deliberately does not re-trigger old builds.
		if !mtime.After(m.Started) {
			continue
		}
		if store.Exists(m.Store.MontageResultsPath(npub)) {
			continue
		}
		jobs = append(jobs, Job{Subject: npub, Upstream: weekly})
	}
	return jobs, nil
}

func (m *Montage) Run(ctx context.Context, job Job) error {
	outPath := m.Store.MontageResultsPath(job.Subject)
	if store.Exists(outPath) {
		return nil
	}

	var weekly store.WeeklyResult
	if err := store.ReadJSON(job.Upstream, &weekly); err != nil {
		return ErrNotReady
	}
	response := strings.TrimSpace(weekly.Response)
	if response == "" {
		m.Log.Printf("%s has no response for %s, skipping", store.WeeklyResultsFile, job.Subject)
		return ErrNotReady
	}

	montageDir := m.Store.MontageDir(job.Subject)
	info, err := os.Stat(montageDir)
	if err != nil || !info.IsDir() {
		m.Log.Printf("no montage directory for %s at %s", job.Subject, montageDir)
		return ErrNotReady
	}
	if findActivityManifest(montageDir) == "" {
		m.Log.Printf("missing activity manifest in %s for %s", montageDir, job.Subject)
		return ErrNotReady
	}
	if !hasMediaFiles(montageDir) {
		m.Log.Printf("no image/video media found in %s for %s", montageDir, job.Subject)
		return ErrNotReady
	}

	if m.Trigger.Token == "" {
		m.Log.Printf("missing trigger token; cannot call trigger API")
		return ErrNotReady
	}

	hex, herr := poster.NpubToHex(job.Subject)
	if herr != nil {
		hex = ""
	}

	prompt := strings.Join([]string{
		"Please create a 30 second montage video as per your instructions from these files.",
		"Limit the number of files to 15 using ~2 second clips; you can select them at random.",
		"",
		"Here's the song that describes the week:",
		response,
	}, "\n")

	m.Log.Printf("processing weekly montage for %s", job.Subject)
	apiResponse, err := m.Trigger.Fire(ctx, trigger.Request{
		RecipeID:    m.RecipeID,
		Prompt:      prompt,
		SessionName: m.SessionName,
		Dir:         montageDir,
	})
	if err != nil {
		// No artifact on failure: the job stays eligible for a later scan.
		m.Log.Printf("trigger API failed for %s: %v", job.Subject, err)
		return ErrRetry
	}

	result := store.MontageResult{
		API:         m.Trigger.URL,
		RecipeID:    m.RecipeID,
		SessionName: m.SessionName,
		Subject:     store.SubjectRef{Npub: job.Subject, Hex: hex},
		Dir:         montageDir,
		Prompt:      prompt,
		Response:    apiResponse,
	}
	if err := store.WriteJSON(outPath, result); err != nil {
		return fmt.Errorf("write %s: %w", store.MontageResultsFile, err)
	}
	m.Log.Printf("triggered montage for %s -> %s", job.Subject, outPath)
	return nil
}

func findActivityManifest(dir string) string {
	for _, name := range activityManifestNames {
		p := filepath.Join(dir, name)
		if store.Exists(p) {
			return p
		}
	}
	return ""
}

func hasMediaFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && prefetch.IsMediaName(e.Name()) {
			return true
		}
	}
	return false
}
