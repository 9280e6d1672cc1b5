package domain

import "time"

type Mode string

const (
	ModeCheck Mode = "check"
	ModeDrill Mode = "drill"
)

func (m Mode) Valid() bool {
	return m == ModeCheck || m == ModeDrill
}

const (
	ReceiptVersion      = "defense_receipt_v1"
	SignatureAlgEd25519 = "ed25519"
)

// UnsignedReceipt is the signed document. Build it once and pass it by value.
type UnsignedReceipt struct {
	RunID      string          `json:"runId"`
	ProtocolID string          `json:"protocolId"`
	Mode       Mode            `json:"mode"`
	Result     RiskScoreResult `json:"result"`
	Signals    SignalSet       `json:"signals"`
	PaymentRef string          `json:"paymentRef,omitempty"`
	AgentID    string          `json:"agentId"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// SignedReceipt is identified by EvidenceHash. Advisory is commentary only and
// is not covered by the signature.
type SignedReceipt struct {
	UnsignedReceipt
	EvidenceHash    string `json:"evidenceHash"`
	Signature       string `json:"signature"`
	SignatureAlg    string `json:"signatureAlg"`
	SignerPublicKey string `json:"signerPublicKey"`
	Advisory        string `json:"advisory,omitempty"`
}
