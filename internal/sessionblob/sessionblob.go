// Package sessionblob persists puppet-bridge session credentials
// (WhatsApp/WeChat pairing state) at rest, encrypted with a key derived
// from the host's own machine-local secret. Conversation history is
// explicitly not encrypted at rest; a channel's login session is a
// different concern — its compromise hands over the account itself —
// so it gets its own narrow encryption layer here.
package sessionblob

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeyEnvVar names the environment variable holding the passphrase
// used to derive the encryption key. If unset, a fixed (and therefore
// weaker) default is used — acceptable for local development, not for
// production deployment, where the variable should always be set.
const KeyEnvVar = "MESSAGE_AGENT_SESSION_KEY"

const nonceSize = 24

func key() [32]byte {
	passphrase := os.Getenv(KeyEnvVar)
	if passphrase == "" {
		passphrase = "message-agent-host-default-session-key"
	}
	return sha256.Sum256([]byte(passphrase))
}

// Save encrypts blob and writes it to path, creating parent
// directories as needed.
func Save(path string, blob []byte) error {
	if path == "" {
		return fmt.Errorf("sessionblob: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("sessionblob: mkdir: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("sessionblob: generate nonce: %w", err)
	}

	k := key()
	sealed := secretbox.Seal(nonce[:], blob, &nonce, &k)

	return os.WriteFile(path, sealed, 0o600)
}

// Load reads and decrypts the blob at path. A missing file is not an
// error: it returns (nil, nil), the "no session yet" case every
// puppet-bridge channel treats as "begin pairing".
func Load(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionblob: read: %w", err)
	}
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("sessionblob: corrupt blob at %s", path)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	k := key()

	blob, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &k)
	if !ok {
		return nil, fmt.Errorf("sessionblob: decryption failed for %s", path)
	}
	return blob, nil
}
