package soft

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

type keystoreFile struct {
	Version      int       `json:"version"`
	Alg          string    `json:"alg"`
	SeedHex      string    `json:"seed_hex"`
	PublicKeyHex string    `json:"public_key_hex"`
	CreatedAt    time.Time `json:"created_at"`
}

// KeyStore holds the agent's single signing key in a local file. The key is
// generated on first use and cached for the process lifetime.
type KeyStore struct {
	path string
	now  func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	key   *domain.SigningKey
}

func NewKeyStore(path string) *KeyStore {
	return &KeyStore{path: path, now: time.Now}
}

// NewStaticKeyStore serves a key supplied by configuration and never touches disk.
func NewStaticKeyStore(key domain.SigningKey) *KeyStore {
	k := key
	return &KeyStore{now: time.Now, key: &k}
}

func (s *KeyStore) Path() string {
	return s.path
}

// Get returns the cached key, initializing the keystore on first call.
func (s *KeyStore) Get(ctx context.Context) (domain.SigningKey, error) {
	if key, ok := s.cached(); ok {
		return key, nil
	}
	return s.Init(ctx)
}

// Init loads the keystore, creating it when the file does not exist.
// Concurrent callers share one load or generation.
func (s *KeyStore) Init(ctx context.Context) (domain.SigningKey, error) {
	return s.do(ctx, "init", func() (domain.SigningKey, error) {
		key, err := s.read()
		if errors.Is(err, domain.ErrKeystoreMissing) {
			return s.generate()
		}
		return key, err
	})
}

// Load reads an existing keystore. It fails with ErrKeystoreMissing rather
// than generating a new key.
func (s *KeyStore) Load(ctx context.Context) (domain.SigningKey, error) {
	return s.do(ctx, "load", s.read)
}

func (s *KeyStore) do(ctx context.Context, name string, fn func() (domain.SigningKey, error)) (domain.SigningKey, error) {
	if key, ok := s.cached(); ok {
		return key, nil
	}
	ch := s.group.DoChan(name, func() (any, error) {
		if key, ok := s.cached(); ok {
			return key, nil
		}
		key, err := fn()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.key = &key
		s.mu.Unlock()
		return key, nil
	})
	select {
	case <-ctx.Done():
		return domain.SigningKey{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.SigningKey{}, res.Err
		}
		return res.Val.(domain.SigningKey), nil
	}
}

func (s *KeyStore) cached() (domain.SigningKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return domain.SigningKey{}, false
	}
	return *s.key, true
}

func (s *KeyStore) read() (domain.SigningKey, error) {
	if s.path == "" {
		return domain.SigningKey{}, domain.ErrKeystoreMissing
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.SigningKey{}, domain.ErrKeystoreMissing
		}
		return domain.SigningKey{}, fmt.Errorf("read keystore: %w", err)
	}
	var file keystoreFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return domain.SigningKey{}, fmt.Errorf("decode keystore: %w", err)
	}
	if file.Alg != domain.SignatureAlgEd25519 {
		return domain.SigningKey{}, fmt.Errorf("unsupported keystore algorithm %q", file.Alg)
	}
	priv, err := readPrivateKeyHex(file.SeedHex)
	if err != nil {
		return domain.SigningKey{}, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	if file.PublicKeyHex != "" && file.PublicKeyHex != hex.EncodeToString(pub) {
		return domain.SigningKey{}, errors.New("keystore public key does not match seed")
	}
	return domain.SigningKey{
		Alg:        domain.SignatureAlgEd25519,
		PrivateKey: priv,
		PublicKey:  pub,
		CreatedAt:  file.CreatedAt,
	}, nil
}

func (s *KeyStore) generate() (domain.SigningKey, error) {
	if s.path == "" {
		return domain.SigningKey{}, errors.New("keystore path is required")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("generate key: %w", err)
	}
	createdAt := s.now().UTC()
	file := keystoreFile{
		Version:      domain.KeystoreVersion,
		Alg:          domain.SignatureAlgEd25519,
		SeedHex:      hex.EncodeToString(priv.Seed()),
		PublicKeyHex: hex.EncodeToString(pub),
		CreatedAt:    createdAt,
	}
	if err := writeAtomic(s.path, file); err != nil {
		return domain.SigningKey{}, err
	}
	return domain.SigningKey{
		Alg:        domain.SignatureAlgEd25519,
		PrivateKey: priv,
		PublicKey:  pub,
		CreatedAt:  createdAt,
	}, nil
}

func writeAtomic(path string, file keystoreFile) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create keystore dir: %w", err)
	}
	payload, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return fmt.Errorf("create temp keystore: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod keystore: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write keystore: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync keystore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close keystore: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("install keystore: %w", err)
	}
	return nil
}
