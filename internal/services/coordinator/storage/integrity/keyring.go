package integrity

import (
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Keyring stores root HMAC keys and the active key id.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring constructs a keyring for HMAC signing and verification.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("hmac keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, fmt.Errorf("active hmac key id is required")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, fmt.Errorf("active hmac key id %q is not configured", activeKeyID)
	}
	copied := make(map[string][]byte, len(keys))
	for id, key := range keys {
		copied[id] = append([]byte(nil), key...)
	}
	return &Keyring{keys: copied, activeKeyID: activeKeyID}, nil
}

// ActiveKeyID returns the signing key id.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// Sign signs chainHash for stream with the active key.
func (k *Keyring) Sign(stream, chainHash string) (signature, keyID string, err error) {
	if k == nil {
		return "", "", fmt.Errorf("hmac keyring is not configured")
	}
	key, err := streamKey(k.keys[k.activeKeyID], stream)
	if err != nil {
		return "", "", err
	}
	return hmacSHA256Hex(key, chainHash), k.activeKeyID, nil
}

// Verify checks a signature produced by Sign under any configured key.
func (k *Keyring) Verify(stream, chainHash, signature, keyID string) error {
	if k == nil {
		return fmt.Errorf("hmac keyring is not configured")
	}
	rootKey, ok := k.keys[strings.TrimSpace(keyID)]
	if !ok {
		return fmt.Errorf("signature key id %q is unknown", keyID)
	}
	key, err := streamKey(rootKey, stream)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(hmacSHA256Hex(key, chainHash)), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func streamKey(rootKey []byte, stream string) ([]byte, error) {
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return nil, fmt.Errorf("stream key is required")
	}
	key, err := hkdf.Key(sha256.New, rootKey, nil, "stream:"+stream, 32)
	if err != nil {
		return nil, fmt.Errorf("derive stream key: %w", err)
	}
	return key, nil
}

func hmacSHA256Hex(key []byte, value string) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
