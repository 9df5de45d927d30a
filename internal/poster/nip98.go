package poster

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// kindHTTPAuth is the NIP-98 HTTP auth event kind.
const kindHTTPAuth = 27235

// AuthToken builds a NIP-98 Authorization header value for the given request.
// When payload is non-nil its SHA-256 is embedded in the signed event, binding
// the token to the exact bytes being uploaded.
func AuthToken(privateKey, url, method string, payload []byte) (string, error) {
	ev := nostr.Event{
		Kind:      kindHTTPAuth,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{"u", url},
			{"method", method},
		},
	}
	if payload != nil {
		sum := sha256.Sum256(payload)
		ev.Tags = append(ev.Tags, nostr.Tag{"payload", hex.EncodeToString(sum[:])})
	}
	if err := ev.Sign(privateKey); err != nil {
		return "", fmt.Errorf("sign auth event: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return "Nostr " + base64.StdEncoding.EncodeToString(data), nil
}
