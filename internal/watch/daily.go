package watch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/otherstuff/craigd/internal/cvm"
	"github.com/otherstuff/craigd/internal/store"
)

// Daily turns a subject's flattened digest (just_text.json) into the per-day
// results array (vm_results.json), one remote tool call per day, sequentially.
type Daily struct {
	Store       *store.Store
	Runner      cvm.Runner
	DefaultTool string
	Log         *log.Logger
}

func (d *Daily) Name() string { return "daily" }

func (d *Daily) Scan(ctx context.Context) ([]Job, error) {
	subjects, err := d.Store.ListSubjects()
	if err != nil {
		return nil, err
	}
	var jobs []Job
	for _, npub := range subjects {
		justText := d.Store.JustTextPath(npub)
		if store.Exists(justText) && !store.Exists(d.Store.DayResultsPath(npub)) {
			jobs = append(jobs, Job{Subject: npub, Upstream: justText})
		}
	}
	return jobs, nil
}

func (d *Daily) Run(ctx context.Context, job Job) error {
	outPath := d.Store.DayResultsPath(job.Subject)
	if store.Exists(outPath) {
		return nil
	}

	var entries []store.JustTextEntry
	if err := store.ReadJSON(job.Upstream, &entries); err != nil {
		d.Log.Printf("unreadable %s for %s: %v", store.JustTextFile, job.Subject, err)
		return ErrNotReady
	}
	if len(entries) == 0 {
		d.Log.Printf("empty %s for %s, skipping", store.JustTextFile, job.Subject)
		return ErrNotReady
	}

	d.Log.Printf("processing %s/%s", job.Subject, store.JustTextFile)

	// Discover tools once per job; the advertised set is not cached across
	// jobs since the server may change between runs.
	tool := d.DefaultTool
	if tools, err := d.Runner.ListTools(ctx); err != nil {
		d.Log.Printf("failed to list tools: %v", err)
	} else {
		d.Log.Printf("available tools: %s", joinToolNames(tools))
		tool = cvm.ResolveTool(tools, d.DefaultTool)
		if tool != d.DefaultTool {
			d.Log.Printf("using fallback tool: %s", tool)
		}
	}

	// One call per day, sequentially, to bound concurrent load on the remote
	// agent. A failed day is recorded inline; the job still completes.
	results := make([]store.DayResult, 0, len(entries))
	for _, jt := range entries {
		d.Log.Printf("processing %s (%d chars)", jt.Filename, len(jt.Content))
		day := store.DayToken(jt.Filename)
		question := fmt.Sprintf("Please analyse and summarize the following daily content for %s (day %s): %s", job.Subject, day, jt.Content)

		text, err := d.Runner.CallTool(ctx, tool, map[string]any{"dayInput": question})
		if err != nil {
			d.Log.Printf("failed for %s: %v", jt.Filename, err)
			results = append(results, store.DayResult{DayFile: jt.Filename, Tool: tool, Error: err.Error()})
			continue
		}
		reply := cvm.ParseReply(text)
		d.Log.Printf("success for %s", jt.Filename)
		results = append(results, store.DayResult{DayFile: jt.Filename, Tool: tool, Response: reply.Summary, EventID: reply.EventID})
	}

	if err := store.WriteJSON(outPath, results); err != nil {
		return fmt.Errorf("write %s: %w", store.DayResultsFile, err)
	}
	ok, failed := 0, 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		} else {
			ok++
		}
	}
	d.Log.Printf("completed %s: %d successful, %d failed -> %s", job.Subject, ok, failed, outPath)
	return nil
}

func joinToolNames(tools []cvm.Tool) string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}
