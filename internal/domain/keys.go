package domain

import (
	"crypto/ed25519"
	"time"
)

const KeystoreVersion = 1

// SigningKey is the agent's long-lived key. It is never rotated automatically.
type SigningKey struct {
	Alg        string
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	CreatedAt  time.Time
}
