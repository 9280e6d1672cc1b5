package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type fakeExec struct {
	query string
	args  []any
	err   error
}

func (f *fakeExec) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	return nil, f.err
}

func testReceipt() domain.SignedReceipt {
	return domain.SignedReceipt{
		UnsignedReceipt: domain.UnsignedReceipt{
			RunID:      "run-1",
			ProtocolID: "aave-v3",
			Mode:       domain.ModeDrill,
			Result: domain.RiskScoreResult{
				Score:              64,
				Level:              domain.LevelHigh,
				VulnerabilityClass: domain.VulnOracleDivergenceCritical,
			},
			Signals: domain.SignalSet{
				Asset:            "ETH",
				OraclePrice:      2500,
				DexPrice:         2200,
				DivergencePct:    12,
				StalenessSeconds: 900,
				LiquidityUSD:     480000,
				SourceLabel:      "synthetic+drill",
			},
			AgentID:   "agent-1",
			CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		EvidenceHash: "0xfeed",
		Signature:    "sig",
	}
}

func TestClickHouse_StoreFlattensReceipt(t *testing.T) {
	exec := &fakeExec{}
	archive := &ClickHouse{db: exec}
	if err := archive.Store(context.Background(), testReceipt()); err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(exec.query, "INSERT INTO defense_receipts") {
		t.Fatalf("unexpected query %q", exec.query)
	}
	if got := strings.Count(exec.query, "?"); got != len(exec.args) {
		t.Fatalf("placeholder count %d does not match args %d", got, len(exec.args))
	}
	if exec.args[0] != "0xfeed" || exec.args[3] != "drill" || exec.args[4] != "ETH" {
		t.Fatalf("unexpected leading args %v", exec.args[:5])
	}
	if exec.args[6] != uint8(64) || exec.args[7] != uint8(3) {
		t.Fatalf("unexpected score/level args %v %v", exec.args[6], exec.args[7])
	}
	var stored domain.SignedReceipt
	if err := json.Unmarshal([]byte(exec.args[len(exec.args)-1].(string)), &stored); err != nil {
		t.Fatalf("decode stored receipt: %v", err)
	}
	if stored.EvidenceHash != "0xfeed" || stored.Signals.DexPrice != 2200 {
		t.Fatalf("unexpected stored receipt %+v", stored)
	}
}

func TestClickHouse_StoreError(t *testing.T) {
	boom := errors.New("connection refused")
	archive := &ClickHouse{db: &fakeExec{err: boom}}
	if err := archive.Store(context.Background(), testReceipt()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without dsn")
	}
}
