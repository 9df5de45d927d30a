package poster

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr/nip19"
)

// NpubToHex decodes a bech32 npub directory name into the subject's hex
// public key.
func NpubToHex(npub string) (string, error) {
	prefix, data, err := nip19.Decode(npub)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", npub, err)
	}
	if prefix != "npub" {
		return "", fmt.Errorf("decode %s: unexpected prefix %q", npub, prefix)
	}
	hex, ok := data.(string)
	if !ok {
		return "", fmt.Errorf("decode %s: unexpected payload type", npub)
	}
	return hex, nil
}
