// Package keystore holds the ed25519 keys that authorize accounts.
//
// Keys are addressed by auth commitment, the hash of the public key that an
// account commits to at creation. On disk each key is one file named after
// the commitment, holding the hex-encoded private key seed.
package keystore

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roach88/notekeeper/internal/ledger"
)

const keySuffix = ".key"

// Store is a keystore backed by a directory, or by memory only when the
// directory is empty.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	dir  string
	keys map[ledger.Digest]ed25519.PrivateKey
}

// Open loads every key in dir, creating dir if needed.
// An empty dir yields an in-memory keystore.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir, keys: make(map[ledger.Digest]ed25519.PrivateKey)}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, ledger.Wrap(ledger.ErrCodeInitialization, err, "create keystore directory")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ledger.Wrap(ledger.ErrCodeInitialization, err, "read keystore directory")
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), keySuffix) {
			continue
		}
		key, err := readKey(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		commitment := commitmentOf(key)
		if name := strings.TrimSuffix(e.Name(), keySuffix); name != fileStem(commitment) {
			return nil, ledger.Errorf(ledger.ErrCodeInitialization, "key file %s does not match its key", e.Name())
		}
		s.keys[commitment] = key
	}
	return s, nil
}

// NewKey generates a key from rng, stores it and returns its commitment.
func (s *Store) NewKey(rng io.Reader) (ledger.Digest, error) {
	_, priv, err := ed25519.GenerateKey(rng)
	if err != nil {
		return ledger.Digest{}, ledger.Wrap(ledger.ErrCodeInitialization, err, "generate key")
	}
	return s.AddKey(priv)
}

// AddKey stores priv and returns its commitment. Adding a known key is a
// no-op.
func (s *Store) AddKey(priv ed25519.PrivateKey) (ledger.Digest, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return ledger.Digest{}, ledger.Errorf(ledger.ErrCodeInitialization, "invalid private key length %d", len(priv))
	}
	commitment := commitmentOf(priv)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[commitment]; ok {
		return commitment, nil
	}
	if s.dir != "" {
		path := filepath.Join(s.dir, fileStem(commitment)+keySuffix)
		data := []byte(hex.EncodeToString(priv.Seed()) + "\n")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return ledger.Digest{}, ledger.Wrap(ledger.ErrCodeInitialization, err, "write key")
		}
	}
	s.keys[commitment] = priv
	return commitment, nil
}

// Has reports whether the key for commitment is held.
func (s *Store) Has(commitment ledger.Digest) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[commitment]
	return ok
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Sign signs msg with the key for commitment and returns the public key with
// the signature.
func (s *Store) Sign(commitment ledger.Digest, msg []byte) (ed25519.PublicKey, []byte, error) {
	s.mu.RLock()
	priv, ok := s.keys[commitment]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ledger.Errorf(ledger.ErrCodeAccountNotFound, "no key for auth commitment %s", commitment)
	}
	return priv.Public().(ed25519.PublicKey), ed25519.Sign(priv, msg), nil
}

// Verify checks that pub matches commitment and that sig signs msg.
func Verify(commitment ledger.Digest, pub, msg, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key length %d", len(pub))
	}
	if ledger.AuthCommitmentFromPublicKey(pub) != commitment {
		return fmt.Errorf("public key does not match auth commitment %s", commitment)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

func commitmentOf(priv ed25519.PrivateKey) ledger.Digest {
	return ledger.AuthCommitmentFromPublicKey(priv.Public().(ed25519.PublicKey))
}

func fileStem(commitment ledger.Digest) string {
	return hex.EncodeToString(commitment[:])
}

func readKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ledger.Wrap(ledger.ErrCodeInitialization, err, "read key")
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, ledger.Errorf(ledger.ErrCodeInitialization, "malformed key file %s", filepath.Base(path))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
