package poster

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/otherstuff/craigd/internal/store"
)

const (
	topicTag       = "cd-video"
	publishTimeout = 10 * time.Second
)

// PublishVideoNote signs a short-text note embedding the uploaded video URL,
// tags the subject and the fixed topic, and broadcasts it to every relay in
// the set. Per-relay outcomes are collected; unanimous success is not
// required.
func PublishVideoNote(ctx context.Context, privateKey, subjectHex, videoURL string, relays []string, logger *log.Logger) (*store.NotePost, error) {
	if len(privateKey) != 64 {
		return nil, fmt.Errorf("missing or malformed signing key")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	ev := nostr.Event{
		Kind:      nostr.KindTextNote,
		CreatedAt: nostr.Now(),
		Content:   fmt.Sprintf("Weekly montage video: %s", videoURL),
	}
	if subjectHex != "" {
		ev.Tags = append(ev.Tags, nostr.Tag{"p", subjectHex})
	}
	ev.Tags = append(ev.Tags, nostr.Tag{"t", topicTag})
	if err := ev.Sign(privateKey); err != nil {
		return nil, fmt.Errorf("sign note: %w", err)
	}

	results := make([]store.RelayOutcome, 0, len(relays))
	for _, relayURL := range relays {
		results = append(results, publishOne(ctx, relayURL, ev, logger))
	}
	return &store.NotePost{EventID: ev.ID, Relays: relays, Results: results}, nil
}

func publishOne(ctx context.Context, relayURL string, ev nostr.Event, logger *log.Logger) store.RelayOutcome {
	out := store.RelayOutcome{Relay: relayURL}
	rctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	relay, err := nostr.RelayConnect(rctx, relayURL)
	if err != nil {
		out.Error = err.Error()
		logger.Printf("relay %s connect failed: %v", relayURL, err)
		return out
	}
	defer relay.Close()

	if err := relay.Publish(rctx, ev); err != nil {
		out.Error = err.Error()
		logger.Printf("relay %s publish failed: %v", relayURL, err)
		return out
	}
	out.OK = true
	return out
}
