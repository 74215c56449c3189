package integrity

import (
	"fmt"
	"strings"
)

// Config holds HMAC key material. Keys is a comma-separated id=secret list;
// Key is a single secret registered under KeyID.
type Config struct {
	Keys  string `env:"EVENTED_EVENT_HMAC_KEYS"`
	Key   string `env:"EVENTED_EVENT_HMAC_KEY"`
	KeyID string `env:"EVENTED_EVENT_HMAC_KEY_ID" envDefault:"v1"`
}

// KeyringFromConfig builds the keyring described by cfg.
func KeyringFromConfig(cfg Config) (*Keyring, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		keyID = "v1"
	}
	raw := strings.TrimSpace(cfg.Keys)
	if raw == "" {
		raw := strings.TrimSpace(cfg.Key)
		if raw == "" {
			return nil, fmt.Errorf("EVENTED_EVENT_HMAC_KEY is required")
		}
		return NewKeyring(map[string][]byte{keyID: []byte(raw)}, keyID)
	}

	keys := make(map[string][]byte)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, value, ok := strings.Cut(entry, "=")
		id, value = strings.TrimSpace(id), strings.TrimSpace(value)
		if !ok || id == "" || value == "" {
			return nil, fmt.Errorf("invalid EVENTED_EVENT_HMAC_KEYS entry %q", entry)
		}
		keys[id] = []byte(value)
	}
	return NewKeyring(keys, keyID)
}
