package tokenstore

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"deskauth/internal/oauth"
	"deskauth/pkg/logging"
	"deskauth/pkg/secret"
)

var (
	// ErrNotFound means no session is persisted.
	ErrNotFound = errors.New("no stored session")

	// ErrExpired is returned by Save for a TokenSet whose expiry has passed.
	ErrExpired = errors.New("token set already expired")

	// ErrCorrupt means the record exists but cannot be decrypted or decoded.
	// The caller should Clear it.
	ErrCorrupt = errors.New("stored session unreadable")

	// ErrStorage wraps filesystem failures.
	ErrStorage = errors.New("session storage failed")
)

// recordVersion is bumped when the record layout changes.
const recordVersion = 1

// record is the plaintext inside the sealed file.
type record struct {
	Version      int       `json:"version"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Config configures a Store.
type Config struct {
	// Dir holds the record. Created 0700 when missing.
	Dir string

	// AppID names the record file <Dir>/<AppID>.tokens.
	AppID string

	// Key is raw key material. When empty, KeyFile is used.
	Key []byte

	// KeyFile defaults to <Dir>/<AppID>.key.
	KeyFile string
}

// Store is the persisted session. It is safe for concurrent use, and writes
// are atomic with respect to other processes reading the record.
type Store struct {
	path  string
	appID string
	aead  cipher.AEAD
	now   func() time.Time

	mu sync.Mutex
	// fingerprint of the record as this process last left it, so the watcher
	// can ignore our own writes. Empty means absent.
	fingerprint string
}

// New opens the store, creating the directory and key file if needed.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("storage directory is required")
	}
	if cfg.AppID == "" {
		return nil, errors.New("app id is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: failed to create storage directory: %w", ErrStorage, err)
	}

	keyFile := cfg.KeyFile
	if keyFile == "" {
		keyFile = filepath.Join(cfg.Dir, cfg.AppID+".key")
	}
	material, err := loadKeyMaterial(cfg.Key, keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	aead, err := newAEAD(material, cfg.AppID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s := &Store{
		path:  filepath.Join(cfg.Dir, cfg.AppID+".tokens"),
		appID: cfg.AppID,
		aead:  aead,
		now:   time.Now,
	}
	s.fingerprint = s.currentFingerprint()
	return s, nil
}

// Path returns the record's location.
func (s *Store) Path() string {
	return s.path
}

// Save replaces the persisted TokenSet. An already expired TokenSet is
// rejected with ErrExpired and the previous record is left untouched.
func (s *Store) Save(ts *oauth.TokenSet) error {
	if ts == nil || ts.AccessToken.IsEmpty() {
		return errors.New("token set has no access token")
	}
	if !ts.ExpiresAt.After(s.now()) {
		return ErrExpired
	}

	plaintext, err := json.Marshal(record{
		Version:      recordVersion,
		AccessToken:  ts.AccessToken.Reveal(),
		RefreshToken: ts.RefreshToken.Reveal(),
		IDToken:      ts.IDToken.Reveal(),
		TokenType:    ts.TokenType,
		ExpiresAt:    ts.ExpiresAt,
		Scopes:       ts.Scopes,
		Email:        ts.Email,
		Name:         ts.Name,
		SavedAt:      s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}

	sealed, err := seal(s.aead, plaintext, []byte(s.appID))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, sealed); err != nil {
		logging.Audit(logging.AuditEvent{Action: "token_stored", Outcome: "failure", Detail: err.Error()})
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.fingerprint = fingerprint(sealed)

	logging.Audit(logging.AuditEvent{
		Action:  "token_stored",
		Outcome: "success",
		Detail:  fmt.Sprintf("expires_at=%s has_refresh_token=%t", ts.ExpiresAt.Format(time.RFC3339), !ts.RefreshToken.IsEmpty()),
	})
	return nil
}

// Load returns the persisted TokenSet, expired or not. It returns
// ErrNotFound when nothing is stored and ErrCorrupt when the record cannot
// be read back.
func (s *Store) Load() (*oauth.TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	plaintext, err := open(s.aead, data, []byte(s.appID))
	if err != nil {
		logging.Warn("TokenStore", "Stored session at %s is unreadable: %v", s.path, err)
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	var rec record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("%w: unsupported record version %d", ErrCorrupt, rec.Version)
	}

	return &oauth.TokenSet{
		AccessToken:  secret.New(rec.AccessToken),
		RefreshToken: secret.New(rec.RefreshToken),
		IDToken:      secret.New(rec.IDToken),
		TokenType:    rec.TokenType,
		ExpiresAt:    rec.ExpiresAt,
		Scopes:       rec.Scopes,
		Email:        rec.Email,
		Name:         rec.Name,
	}, nil
}

// Clear removes the persisted record. Clearing an absent record succeeds.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Audit(logging.AuditEvent{Action: "token_cleared", Outcome: "failure", Detail: err.Error()})
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.fingerprint = ""

	logging.Audit(logging.AuditEvent{Action: "token_cleared", Outcome: "success"})
	return nil
}

// writeAtomic writes data to a temporary file in the target directory and
// renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return string(sum[:])
}

// currentFingerprint reads the record's fingerprint from disk, empty when
// absent.
func (s *Store) currentFingerprint() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return fingerprint(data)
}
