package collab

import (
	"context"
	"errors"
	"strings"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/httpjson"
)

// HTTPNarrator posts the signals and score to a text service and returns its
// narration. Callers fall back to a fixed template when it fails.
type HTTPNarrator struct {
	client *httpjson.Client
	url    string
}

func NewHTTPNarrator(url string, client *httpjson.Client) (*HTTPNarrator, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("narrator url is required")
	}
	if client == nil {
		client = httpjson.NewClient()
	}
	return &HTTPNarrator{client: client, url: url}, nil
}

type narrateRequest struct {
	Signals domain.SignalSet       `json:"signals"`
	Result  domain.RiskScoreResult `json:"result"`
}

type narrateResponse struct {
	Text string `json:"text"`
}

func (n *HTTPNarrator) Narrate(ctx context.Context, signals domain.SignalSet, result domain.RiskScoreResult) (string, error) {
	var out narrateResponse
	if err := n.client.Post(ctx, n.url, narrateRequest{Signals: signals, Result: result}, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

var _ domain.AdvisoryNarrator = (*HTTPNarrator)(nil)
