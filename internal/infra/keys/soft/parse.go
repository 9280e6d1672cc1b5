package soft

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

// KeyFromConfig builds a signing key from a configured seed or private key.
// Hex is tried before base64.
func KeyFromConfig(seedHex, privateKeyBase64 string) (domain.SigningKey, error) {
	var (
		priv ed25519.PrivateKey
		err  error
	)
	switch {
	case seedHex != "":
		priv, err = readPrivateKeyHex(seedHex)
	case privateKeyBase64 != "":
		priv, err = readPrivateKeyBase64(privateKeyBase64)
	default:
		return domain.SigningKey{}, errors.New("no signing key configured")
	}
	if err != nil {
		return domain.SigningKey{}, err
	}
	return domain.SigningKey{
		Alg:        domain.SignatureAlgEd25519,
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func readPrivateKeyBase64(value string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid private key base64: %w", err)
	}
	return parsePrivateKey(raw)
}

func readPrivateKeyHex(value string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	return parsePrivateKey(raw)
}

func parsePrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]), nil
	default:
		return nil, errors.New("invalid ed25519 private key length")
	}
}
