package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// PublicTSK is the exportable half of a token-signing key. The master ships
// the full valid set on every heartbeat response so tablet servers can
// verify tokens locally.
type PublicTSK struct {
	KeyID      int64
	PublicKey  []byte
	ExpireUnix int64
}

type tsk struct {
	id     int64
	pub    ed25519.PublicKey
	priv   ed25519.PrivateKey
	expire time.Time
}

// TokenSigner owns the master's token-signing keys and their rotation.
// Rotation keeps previous unexpired keys valid so tokens signed before a
// rotation still verify.
type TokenSigner struct {
	validity time.Duration

	mu     sync.Mutex
	keys   []tsk
	nextID int64
}

func NewTokenSigner(validity time.Duration) (*TokenSigner, error) {
	if validity <= 0 {
		validity = 7 * 24 * time.Hour
	}
	s := &TokenSigner{validity: validity}
	if err := s.Rotate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Rotate generates a fresh signing key and prunes expired ones.
func (s *TokenSigner) Rotate() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate token signing key: %w", err)
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	kept := s.keys[:0]
	for _, k := range s.keys {
		if k.expire.After(now) {
			kept = append(kept, k)
		}
	}
	s.keys = append(kept, tsk{
		id:     s.nextID,
		pub:    pub,
		priv:   priv,
		expire: now.Add(s.validity),
	})
	return nil
}

// Sign signs payload with the newest key and returns the key id used.
func (s *TokenSigner) Sign(payload []byte) (int64, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) == 0 {
		return 0, nil, fmt.Errorf("no token signing key available")
	}
	k := s.keys[len(s.keys)-1]
	return k.id, ed25519.Sign(k.priv, payload), nil
}

// PublicKeys exports every currently valid public key.
func (s *TokenSigner) PublicKeys() []PublicTSK {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PublicTSK, 0, len(s.keys))
	for _, k := range s.keys {
		if !k.expire.After(now) {
			continue
		}
		out = append(out, PublicTSK{
			KeyID:      k.id,
			PublicKey:  append([]byte(nil), k.pub...),
			ExpireUnix: k.expire.Unix(),
		})
	}
	return out
}

// TokenVerifier is the tablet-server side key set, fed from heartbeat
// responses. Imports are additive and idempotent.
type TokenVerifier struct {
	mu   sync.RWMutex
	keys map[int64]PublicTSK
}

func NewTokenVerifier() *TokenVerifier {
	return &TokenVerifier{keys: make(map[int64]PublicTSK)}
}

// ImportKeys merges keys received from the master. Keys of the wrong length
// are dropped; a corrupt response must never take the importer down.
func (v *TokenVerifier) ImportKeys(keys []PublicTSK) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, k := range keys {
		if len(k.PublicKey) != ed25519.PublicKeySize {
			continue
		}
		v.keys[k.KeyID] = k
	}
}

// ExportKeys returns all known keys.
func (v *TokenVerifier) ExportKeys() []PublicTSK {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]PublicTSK, 0, len(v.keys))
	for _, k := range v.keys {
		out = append(out, k)
	}
	return out
}

// Verify checks sig over payload against the named key.
func (v *TokenVerifier) Verify(keyID int64, payload, sig []byte) bool {
	v.mu.RLock()
	k, ok := v.keys[keyID]
	v.mu.RUnlock()
	if !ok || time.Now().Unix() >= k.ExpireUnix {
		return false
	}
	// ed25519.Verify panics on keys of the wrong length.
	if len(k.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(k.PublicKey), payload, sig)
}
