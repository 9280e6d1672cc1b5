package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) Canonicalize(v any) ([]byte, error) {
	return Canonicalize(v)
}

func (s *Service) Hash(b []byte) string {
	return Hash(b)
}

// Sign returns the base64 Ed25519 signature of canonical.
func (s *Service) Sign(canonical []byte, key ed25519.PrivateKey) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("invalid ed25519 private key length: %d", len(key))
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(key, canonical)), nil
}

// Verify never panics. Malformed keys or signatures verify as false.
func (s *Service) Verify(canonical []byte, signature string, pubKey []byte) bool {
	return s.VerifySignature(canonical, signature, pubKey) == nil
}

func (s *Service) VerifySignature(canonical []byte, signature string, pubKey []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key length %d", domain.ErrInvalidSignature, len(pubKey))
	}
	if signature == "" {
		return fmt.Errorf("%w: signature value is required", domain.ErrInvalidSignature)
	}
	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", domain.ErrInvalidSignature, err)
	}
	if len(sigBytes) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature length %d", domain.ErrInvalidSignature, len(sigBytes))
	}
	if !ed25519.Verify(pubKey, canonical, sigBytes) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// SignReceipt canonicalizes, hashes and signs r with key.
func (s *Service) SignReceipt(r domain.UnsignedReceipt, key domain.SigningKey) (domain.SignedReceipt, error) {
	canonical, err := CanonicalizeReceipt(r)
	if err != nil {
		return domain.SignedReceipt{}, err
	}
	sig, err := s.Sign(canonical, key.PrivateKey)
	if err != nil {
		return domain.SignedReceipt{}, err
	}
	return domain.SignedReceipt{
		UnsignedReceipt: r,
		EvidenceHash:    Hash(canonical),
		Signature:       sig,
		SignatureAlg:    domain.SignatureAlgEd25519,
		SignerPublicKey: hex.EncodeToString(key.PublicKey),
	}, nil
}

// VerifyReceipt recomputes the canonical projection of r and checks both its
// hash and signature against the fields carried by r.
func (s *Service) VerifyReceipt(r domain.SignedReceipt) error {
	if r.SignatureAlg != "" && r.SignatureAlg != domain.SignatureAlgEd25519 {
		return fmt.Errorf("%w: unsupported algorithm %s", domain.ErrInvalidSignature, r.SignatureAlg)
	}
	canonical, err := CanonicalizeReceipt(r.UnsignedReceipt)
	if err != nil {
		return err
	}
	if Hash(canonical) != r.EvidenceHash {
		return domain.ErrEvidenceHashMismatch
	}
	pub, err := DecodePublicKeyHex(r.SignerPublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return s.VerifySignature(canonical, r.Signature, pub)
}

// SignAnchorRequest signs the SHA-256 digest of the canonical anchor payload.
func (s *Service) SignAnchorRequest(req domain.AnchorRequest, key domain.SigningKey) (domain.SignedAnchorRequest, error) {
	canonical, err := CanonicalizeAnchorRequest(req)
	if err != nil {
		return domain.SignedAnchorRequest{}, err
	}
	sig, err := s.Sign(sha256Bytes(canonical), key.PrivateKey)
	if err != nil {
		return domain.SignedAnchorRequest{}, err
	}
	return domain.SignedAnchorRequest{AnchorRequest: req, Signature: sig}, nil
}

func (s *Service) VerifyAnchorRequest(req domain.SignedAnchorRequest, pubKey []byte) error {
	canonical, err := CanonicalizeAnchorRequest(req.AnchorRequest)
	if err != nil {
		return err
	}
	return s.VerifySignature(sha256Bytes(canonical), req.Signature, pubKey)
}

func DecodePublicKeyHex(value string) (ed25519.PublicKey, error) {
	if value == "" {
		return nil, errors.New("public key is required")
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key length: %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
