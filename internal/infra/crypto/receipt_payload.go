package crypto

import "github.com/cosu123/reality-firewall-v3/internal/domain"

// receiptPayload is the signed projection of a receipt. Signature, public key,
// evidence hash and advisory are outside it.
type receiptPayload struct {
	AgentID    string         `json:"agentId"`
	CreatedAt  string         `json:"createdAt"`
	Mode       string         `json:"mode"`
	PaymentRef string         `json:"paymentRef,omitempty"`
	ProtocolID string         `json:"protocolId"`
	Result     resultPayload  `json:"result"`
	RunID      string         `json:"runId"`
	Signals    signalsPayload `json:"signals"`
	Version    string         `json:"version"`
}

type resultPayload struct {
	Actions            []actionPayload `json:"actions"`
	Level              int             `json:"level"`
	Score              int             `json:"score"`
	VulnerabilityClass string          `json:"vulnerabilityClass"`
}

type actionPayload struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Type        string `json:"type"`
}

type signalsPayload struct {
	Asset            string  `json:"asset"`
	BlockNumber      *uint64 `json:"blockNumber,omitempty"`
	DexPrice         float64 `json:"dexPrice"`
	DivergencePct    float64 `json:"divergencePct"`
	FundingRatePct   float64 `json:"fundingRatePct"`
	LiquidityUSD     float64 `json:"liquidityUsd"`
	OraclePrice      float64 `json:"oraclePrice"`
	SourceLabel      string  `json:"sourceLabel"`
	StalenessSeconds int64   `json:"stalenessSeconds"`
	Timestamp        string  `json:"timestamp"`
}

type anchorPayload struct {
	AgentID      string `json:"agentId"`
	EvidenceHash string `json:"evidenceHash"`
	IsDrill      bool   `json:"isDrill"`
	Level        int    `json:"level"`
	RunIDHash    string `json:"runIdHash"`
	Score        int    `json:"score"`
	Version      string `json:"version"`
}

func buildReceiptPayload(r domain.UnsignedReceipt) receiptPayload {
	actions := make([]actionPayload, 0, len(r.Result.Actions))
	for _, a := range r.Result.Actions {
		actions = append(actions, actionPayload{
			Description: a.Description,
			Severity:    string(a.Severity),
			Type:        string(a.Type),
		})
	}
	s := r.Signals
	return receiptPayload{
		AgentID:    r.AgentID,
		CreatedAt:  FormatTime(r.CreatedAt),
		Mode:       string(r.Mode),
		PaymentRef: r.PaymentRef,
		ProtocolID: r.ProtocolID,
		Result: resultPayload{
			Actions:            actions,
			Level:              int(r.Result.Level),
			Score:              r.Result.Score,
			VulnerabilityClass: string(r.Result.VulnerabilityClass),
		},
		RunID: r.RunID,
		Signals: signalsPayload{
			Asset:            s.Asset,
			BlockNumber:      s.BlockNumber,
			DexPrice:         s.DexPrice,
			DivergencePct:    s.DivergencePct,
			FundingRatePct:   s.FundingRatePct,
			LiquidityUSD:     s.LiquidityUSD,
			OraclePrice:      s.OraclePrice,
			SourceLabel:      s.SourceLabel,
			StalenessSeconds: s.StalenessSeconds,
			Timestamp:        FormatTime(s.Timestamp),
		},
		Version: domain.ReceiptVersion,
	}
}

func buildAnchorPayload(req domain.AnchorRequest) anchorPayload {
	return anchorPayload{
		AgentID:      req.AgentID,
		EvidenceHash: req.EvidenceHash,
		IsDrill:      req.IsDrill,
		Level:        req.Level,
		RunIDHash:    req.RunIDHash,
		Score:        req.Score,
		Version:      domain.AnchorRequestVersion,
	}
}

// CanonicalizeReceipt returns the bytes that are hashed and signed.
func CanonicalizeReceipt(r domain.UnsignedReceipt) ([]byte, error) {
	return Canonicalize(buildReceiptPayload(r))
}

// CanonicalizeAnchorRequest returns the bytes whose digest a signed anchor covers.
func CanonicalizeAnchorRequest(req domain.AnchorRequest) ([]byte, error) {
	return Canonicalize(buildAnchorPayload(req))
}
