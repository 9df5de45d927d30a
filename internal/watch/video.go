package watch

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/otherstuff/craigd/internal/poster"
	"github.com/otherstuff/craigd/internal/store"
)

// Video watches for a produced montage video, uploads it to a blob host and
// announces it with a signed note. The terminal artifact is written on
// success and failure alike so a broken run can be diagnosed without
// re-running it.
type Video struct {
	Store    *store.Store
	Uploader *poster.Uploader
	Key      string
	Relays   []string
	Debug    bool
	Started  time.Time
	Log      *log.Logger
}

func (v *Video) Name() string { return "video" }

func (v *Video) Scan(ctx context.Context) ([]Job, error) {
	subjects, err := v.Store.ListSubjects()
	if err != nil {
		return nil, err
	}
	var jobs []Job
	for _, npub := range subjects {
		videoPath := v.Store.VideoPath(npub)
		mtime, ok := store.ModTime(videoPath)
		if !ok {
			continue
		}
		if !mtime.After(v.Started) {
			continue
		}
		if store.Exists(v.Store.VideoResultsPath(npub)) {
			continue
		}
		jobs = append(jobs, Job{Subject: npub, Upstream: videoPath})
	}
	return jobs, nil
}

func (v *Video) Run(ctx context.Context, job Job) error {
	resultsPath := v.Store.VideoResultsPath(job.Subject)
	if store.Exists(resultsPath) {
		return nil
	}

	v.Log.Printf("found video for %s: %s", job.Subject, job.Upstream)
	hex, herr := poster.NpubToHex(job.Subject)
	if herr != nil {
		hex = ""
	}

	result := store.VideoPostResult{
		Npub:       job.Subject,
		SubjectHex: hex,
		VideoPath:  job.Upstream,
		StartedAt:  time.Now().UTC(),
	}

	if upload, err := v.Uploader.Upload(ctx, job.Upstream); err != nil {
		result.Error = err.Error()
		if v.Debug {
			result.Stack = string(debug.Stack())
		}
		v.Log.Printf("upload failed for %s: %v", job.Subject, err)
	} else {
		result.Upload = &store.UploadResult{
			Server:   upload.Server,
			URL:      upload.URL,
			Tags:     upload.Tags,
			Strategy: upload.Strategy,
		}
		v.Log.Printf("uploaded -> %s", upload.URL)

		if post, err := poster.PublishVideoNote(ctx, v.Key, hex, upload.URL, v.Relays, v.Log); err != nil {
			result.Error = err.Error()
			if v.Debug {
				result.Stack = string(debug.Stack())
			}
			v.Log.Printf("post failed for %s: %v", job.Subject, err)
		} else {
			result.Post = post
			v.Log.Printf("posted note %s", post.EventID)
		}
	}

	if err := store.WriteJSON(resultsPath, result); err != nil {
		return fmt.Errorf("write %s: %w", store.VideoResultsFile, err)
	}
	v.Log.Printf("results: %s", resultsPath)
	return nil
}
