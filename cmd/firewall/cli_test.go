package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/crypto"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"firewall"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func signedReceipt(t *testing.T) (domain.SignedReceipt, domain.SigningKey) {
	t.Helper()
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	key := domain.SigningKey{
		Alg:        domain.SignatureAlgEd25519,
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
	}
	at := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	receipt, err := crypto.NewService().SignReceipt(domain.UnsignedReceipt{
		RunID:      "run-cli",
		ProtocolID: "lending-v2",
		Mode:       domain.ModeCheck,
		Result: domain.RiskScoreResult{
			Score:              54,
			Level:              domain.LevelMedium,
			VulnerabilityClass: domain.VulnOracleDivergenceElevated,
			Actions:            []domain.Action{},
		},
		Signals: domain.SignalSet{
			Asset:            "ETH",
			OraclePrice:      2780,
			DexPrice:         2502,
			StalenessSeconds: 650,
			LiquidityUSD:     480_000,
			SourceLabel:      "synthetic",
			Timestamp:        at,
		}.WithDivergence(),
		AgentID:   "agent-1",
		CreatedAt: at,
	}, key)
	if err != nil {
		t.Fatalf("sign receipt: %v", err)
	}
	return receipt, key
}

func TestVerify(t *testing.T) {
	receipt, key := signedReceipt(t)
	dir := t.TempDir()

	good, err := json.Marshal(receipt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	tampered := receipt
	tampered.Result.Score = 10
	bad, _ := json.Marshal(tampered)

	otherKey := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{8}, ed25519.SeedSize)).Public().(ed25519.PublicKey)

	tests := []struct {
		name string
		file []byte
		args []string
		want int
	}{
		{"valid", good, nil, exitOK},
		{"valid with matching key", good, []string{"--pubkey-hex", hex.EncodeToString(key.PublicKey)}, exitOK},
		{"tampered", bad, nil, exitInvalid},
		{"wrong signer", good, []string{"--pubkey-hex", hex.EncodeToString(otherKey)}, exitInvalid},
		{"not json", []byte("nope"), nil, exitInvalid},
	}
	for i, tt := range tests {
		tt := tt
		path := writeFile(t, dir, "receipt"+string(rune('a'+i))+".json", tt.file)
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, append([]string{"verify", "--in", path}, tt.args...)...)
			if code != tt.want {
				t.Fatalf("exit %d, want %d (stdout=%q stderr=%q)", code, tt.want, stdout, stderr)
			}
			if tt.want == exitOK && !strings.Contains(stdout, "status=valid") {
				t.Fatalf("unexpected output %q", stdout)
			}
		})
	}
}

func TestHash(t *testing.T) {
	receipt, _ := signedReceipt(t)
	dir := t.TempDir()

	doc := writeFile(t, dir, "doc.json", []byte(`{"b":1,"a":[true,null,"x"]}`))
	code, stdout, _ := runCLI(t, "hash", "--in", doc)
	if code != exitOK {
		t.Fatalf("exit %d", code)
	}
	if want := crypto.Hash([]byte(`{"a":[true,null,"x"],"b":1}`)); strings.TrimSpace(stdout) != want {
		t.Fatalf("hash = %s, want %s", stdout, want)
	}

	raw, _ := json.Marshal(receipt)
	path := writeFile(t, dir, "receipt.json", raw)
	code, stdout, _ = runCLI(t, "hash", "--in", path, "--receipt")
	if code != exitOK {
		t.Fatalf("exit %d", code)
	}
	if strings.TrimSpace(stdout) != receipt.EvidenceHash {
		t.Fatalf("receipt hash = %s, want %s", stdout, receipt.EvidenceHash)
	}
}

func TestCanonicalize(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.json", []byte("{ \"z\": 1.50, \"a\": {\"d\": 1e21, \"c\": \"\\u00e9\"} }"))
	out := filepath.Join(dir, "out.json")

	if code, _, stderr := runCLI(t, "canonicalize", "--in", in, "--out", out); code != exitOK {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if want := `{"a":{"c":"é","d":1e+21},"z":1.5}`; string(got) != want {
		t.Fatalf("canonical = %s, want %s", got, want)
	}

	bad := writeFile(t, dir, "bad.json", []byte(`{"a":`))
	if code, _, _ := runCLI(t, "canonicalize", "--in", bad); code != exitInvalid {
		t.Fatalf("expected exit %d for malformed input, got %d", exitInvalid, code)
	}
}

func TestKeygenIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "agent.json")
	code, first, stderr := runCLI(t, "keygen", "--keystore", path)
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	code, second, _ := runCLI(t, "keygen", "--keystore", path)
	if code != exitOK {
		t.Fatalf("second exit %d", code)
	}
	if first != second {
		t.Fatalf("keygen regenerated the key:\n%s\n%s", first, second)
	}
	if !strings.Contains(first, "public_key_hex=") {
		t.Fatalf("missing public key in %q", first)
	}
}

func TestUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"frobnicate"}, {"verify"}, {"hash"}, {"keygen"}} {
		if code, _, _ := runCLI(t, args...); code != exitUsage {
			t.Fatalf("args %v: exit %d, want %d", args, code, exitUsage)
		}
	}
}
