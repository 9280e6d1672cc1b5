package collab

import (
	"context"
	"errors"
	"strings"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/httpjson"
)

// HTTPPaymentGate asks a payment facilitator whether a reference is settled.
type HTTPPaymentGate struct {
	client *httpjson.Client
	url    string
}

func NewHTTPPaymentGate(url string, client *httpjson.Client) (*HTTPPaymentGate, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("payment facilitator url is required")
	}
	if client == nil {
		client = httpjson.NewClient()
	}
	return &HTTPPaymentGate{client: client, url: url}, nil
}

type paymentRequest struct {
	PaymentRef string `json:"paymentRef"`
}

func (g *HTTPPaymentGate) Verify(ctx context.Context, paymentRef string) (domain.PaymentVerification, error) {
	var out domain.PaymentVerification
	if err := g.client.Post(ctx, g.url, paymentRequest{PaymentRef: paymentRef}, &out); err != nil {
		return domain.PaymentVerification{}, err
	}
	return out, nil
}

// StaticPaymentGate accepts a fixed set of references. Development only.
type StaticPaymentGate struct {
	refs map[string]struct{}
}

func NewStaticPaymentGate(refs []string) *StaticPaymentGate {
	g := &StaticPaymentGate{refs: make(map[string]struct{}, len(refs))}
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			g.refs[ref] = struct{}{}
		}
	}
	return g
}

func (g *StaticPaymentGate) Verify(_ context.Context, paymentRef string) (domain.PaymentVerification, error) {
	if _, ok := g.refs[paymentRef]; ok {
		return domain.PaymentVerification{Valid: true}, nil
	}
	return domain.PaymentVerification{Valid: false, Reason: "unknown payment reference"}, nil
}

var (
	_ domain.PaymentGate = (*HTTPPaymentGate)(nil)
	_ domain.PaymentGate = (*StaticPaymentGate)(nil)
)
