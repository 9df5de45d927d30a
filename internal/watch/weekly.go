package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/otherstuff/craigd/internal/cvm"
	"github.com/otherstuff/craigd/internal/poster"
	"github.com/otherstuff/craigd/internal/store"
)

// Weekly aggregates a subject's daily results (vm_results.json) into a single
// weekly result (weekly_vm_results.json) with one remote tool call.
type Weekly struct {
	Store       *store.Store
	Runner      cvm.Runner
	DefaultTool string
	Log         *log.Logger
}

func (w *Weekly) Name() string { return "weekly" }

func (w *Weekly) Scan(ctx context.Context) ([]Job, error) {
	subjects, err := w.Store.ListSubjects()
	if err != nil {
		return nil, err
	}
	var jobs []Job
	for _, npub := range subjects {
		daily := w.Store.DayResultsPath(npub)
		if store.Exists(daily) && !store.Exists(w.Store.WeeklyResultsPath(npub)) {
			jobs = append(jobs, Job{Subject: npub, Upstream: daily})
		}
	}
	return jobs, nil
}

// daySummary is the condensed per-day payload sent to the weekly tool.
type daySummary struct {
	Day     string `json:"day"`
	Summary string `json:"summary"`
}

func (w *Weekly) Run(ctx context.Context, job Job) error {
	outPath := w.Store.WeeklyResultsPath(job.Subject)
	if store.Exists(outPath) {
		return nil
	}

	// Empty or malformed daily results mean "not yet ready", never a terminal
	// failure: the daily stage may still be rewriting them.
	var days []store.DayResult
	if err := store.ReadJSON(job.Upstream, &days); err != nil {
		return ErrNotReady
	}
	if len(days) == 0 {
		return ErrNotReady
	}

	condensed := condenseDays(days)
	payload, err := json.Marshal(condensed)
	if err != nil {
		return fmt.Errorf("encode weekly payload: %w", err)
	}

	tool := w.DefaultTool
	if tools, lerr := w.Runner.ListTools(ctx); lerr != nil {
		w.Log.Printf("failed to list tools: %v", lerr)
	} else {
		tool = cvm.ResolveTool(tools, w.DefaultTool, "weekly")
		if tool != w.DefaultTool {
			w.Log.Printf("using fallback tool: %s", tool)
		}
	}

	hex, herr := poster.NpubToHex(job.Subject)
	if herr != nil {
		hex = ""
	}

	// Weekly tool deployments disagree on argument names; try the known
	// shapes in order and take the first that does not raise.
	text, callErr := w.callWithShapes(ctx, tool, string(payload), job.Subject, hex)
	if callErr != nil {
		w.Log.Printf("weekly call failed for %s: %v", job.Subject, callErr)
		result := store.WeeklyResult{Tool: tool, Error: callErr.Error()}
		if err := store.WriteJSON(outPath, result); err != nil {
			return fmt.Errorf("write %s: %w", store.WeeklyResultsFile, err)
		}
		return nil
	}

	reply := cvm.ParseReply(text)
	result := store.WeeklyResult{
		Tool:     tool,
		Subject:  &store.SubjectRef{Npub: job.Subject, Hex: hex},
		Response: reply.Summary,
		EventID:  reply.EventID,
	}
	if err := store.WriteJSON(outPath, result); err != nil {
		return fmt.Errorf("write %s: %w", store.WeeklyResultsFile, err)
	}
	w.Log.Printf("completed weekly summary for %s (%d days) -> %s", job.Subject, len(condensed), outPath)
	return nil
}

func (w *Weekly) callWithShapes(ctx context.Context, tool, payload, npub, hex string) (string, error) {
	type subjectArg struct{ key, value string }
	var lastErr error
	for _, payloadKey := range []string{"weeklyInput", "input", "prompt"} {
		for _, sub := range []subjectArg{{"subjectHex", hex}, {"subject", npub}} {
			args := map[string]any{payloadKey: payload, sub.key: sub.value}
			text, err := w.Runner.CallTool(ctx, tool, args)
			if err == nil {
				return text, nil
			}
			lastErr = err
		}
	}
	return "", lastErr
}

// condenseDays keeps the successful day summaries, sorted ascending by day
// token. Failed days are dropped from the aggregate; partial weeks are the
// normal completion mode upstream.
func condenseDays(days []store.DayResult) []daySummary {
	out := make([]daySummary, 0, len(days))
	for _, d := range days {
		if d.Response == "" {
			continue
		}
		out = append(out, daySummary{Day: store.DayToken(d.DayFile), Summary: d.Response})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
