// Package counter persists the per-machine monotonic run counter: an
// encrypted, checksummed JSON blob under $HOME/.exam-recorder/state.json.enc.
package counter

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/azmarif/examguard/internal/cryptoenv"
)

// StateFileName is the on-disk name of the encrypted counter file.
const StateFileName = "state.json.enc"

// SessionCounter is the persisted, monotonically non-decreasing run count
// for one user/machine pair.
type SessionCounter struct {
	RunCounter  uint64 `json:"run_counter"`
	LastRunTime *int64 `json:"last_run_time"`
}

// Store loads and saves a SessionCounter under dir, encrypted with a key
// derived from hostname and username.
type Store struct {
	dir      string
	hostname string
	username string
}

// NewStore returns a Store rooted at dir (typically
// "$HOME/.exam-recorder"), keying the machine-derived envelope off
// hostname and username.
func NewStore(dir, hostname, username string) *Store {
	return &Store{dir: dir, hostname: hostname, username: username}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, StateFileName)
}

func (s *Store) aead() (cipher.AEAD, error) {
	key := cryptoenv.DeriveMachineKey(s.hostname, s.username)
	return cryptoenv.NewAEAD(key)
}

// Load reads the counter file. A missing file is not an error: it returns
// a fresh, zero-valued counter. Any ciphertext failure, checksum mismatch,
// or parse failure is fatal and reported as tampering.
func (s *Store) Load() (*SessionCounter, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return &SessionCounter{}, nil
		}
		return nil, fmt.Errorf("counter: read state file: %w", err)
	}

	aead, err := s.aead()
	if err != nil {
		return nil, fmt.Errorf("counter: derive machine key: %w", err)
	}
	plaintext, err := cryptoenv.Open(aead, data)
	if err != nil {
		return nil, fmt.Errorf("counter: state file tampered or undecryptable: %w", err)
	}

	if len(plaintext) < sha256.Size {
		return nil, fmt.Errorf("counter: state payload too short, possible tampering")
	}
	payload, checksum := plaintext[:len(plaintext)-sha256.Size], plaintext[len(plaintext)-sha256.Size:]
	sum := sha256.Sum256(payload)
	if string(sum[:]) != string(checksum) {
		return nil, fmt.Errorf("counter: state checksum mismatch, possible tampering")
	}

	var sc SessionCounter
	if err := json.Unmarshal(payload, &sc); err != nil {
		return nil, fmt.Errorf("counter: parse state JSON: %w", err)
	}
	return &sc, nil
}

// Save serialises sc as JSON||SHA256(JSON), encrypts it under the
// machine-derived key, and writes it with mode 0o600.
//
// The original source wrote this file with mode 0o000, which makes
// subsequent reads impossible without elevated privileges — an acknowledged
// bug. This implementation uses 0o600, matching the artifact file's mode.
func (s *Store) Save(sc *SessionCounter) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("counter: create state dir: %w", err)
	}

	payload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("counter: serialize state: %w", err)
	}
	sum := sha256.Sum256(payload)
	withChecksum := append(payload, sum[:]...)

	aead, err := s.aead()
	if err != nil {
		return fmt.Errorf("counter: derive machine key: %w", err)
	}
	envelope, err := cryptoenv.Seal(aead, withChecksum)
	if err != nil {
		return fmt.Errorf("counter: encrypt state: %w", err)
	}

	if err := os.WriteFile(s.path(), envelope, 0o600); err != nil {
		return fmt.Errorf("counter: write state file: %w", err)
	}
	return os.Chmod(s.path(), 0o600)
}

// Increment bumps RunCounter and stamps LastRunTime to now.
func (sc *SessionCounter) Increment(now time.Time) {
	sc.RunCounter++
	unix := now.Unix()
	sc.LastRunTime = &unix
}
