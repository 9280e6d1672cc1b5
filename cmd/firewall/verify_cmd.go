package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/crypto"
)

// runVerify exits 0 when the receipt verifies, 2 when it does not and 1 on
// usage or read errors.
func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var inPath, pubKeyHex string
	fs.StringVar(&inPath, "in", "", "signed receipt JSON (- for stdin)")
	fs.StringVar(&pubKeyHex, "pubkey-hex", "", "expected signer public key (hex)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if inPath == "" {
		fmt.Fprintln(stderr, "verify requires --in")
		return exitUsage
	}

	raw, err := readInput(inPath)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return exitUsage
	}
	var receipt domain.SignedReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		fmt.Fprintf(stderr, "decode receipt: %v\n", err)
		return exitInvalid
	}

	if pubKeyHex != "" {
		want := strings.ToLower(strings.TrimSpace(pubKeyHex))
		if _, err := crypto.DecodePublicKeyHex(want); err != nil {
			fmt.Fprintf(stderr, "pubkey-hex: %v\n", err)
			return exitUsage
		}
		if !strings.EqualFold(receipt.SignerPublicKey, want) {
			printVerdict(stdout, receipt, fmt.Errorf("%w: signer does not match --pubkey-hex", domain.ErrInvalidSignature))
			return exitInvalid
		}
	}

	err = crypto.NewService().VerifyReceipt(receipt)
	printVerdict(stdout, receipt, err)
	if err != nil {
		return exitInvalid
	}
	return exitOK
}

func printVerdict(w io.Writer, receipt domain.SignedReceipt, err error) {
	status := "valid"
	if err != nil {
		status = "invalid"
	}
	fmt.Fprintf(w, "status=%s\n", status)
	fmt.Fprintf(w, "evidence_hash=%s\n", receipt.EvidenceHash)
	fmt.Fprintf(w, "score=%d level=%s mode=%s\n", receipt.Result.Score, receipt.Result.Level, receipt.Mode)
	if err != nil {
		fmt.Fprintf(w, "reason=%v\n", err)
	}
}
