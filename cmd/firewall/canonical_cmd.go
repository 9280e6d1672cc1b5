package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/crypto"
)

func runCanonicalize(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("canonicalize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var inPath, outPath string
	fs.StringVar(&inPath, "in", "", "input JSON file (- for stdin)")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if inPath == "" {
		fmt.Fprintln(stderr, "canonicalize requires --in")
		return exitUsage
	}

	raw, err := readInput(inPath)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return exitUsage
	}
	canonical, err := crypto.CanonicalizeJSON(raw)
	if err != nil {
		fmt.Fprintf(stderr, "canonicalize: %v\n", err)
		return exitInvalid
	}
	if outPath == "" {
		fmt.Fprintln(stdout, string(canonical))
		return exitOK
	}
	if err := os.WriteFile(outPath, canonical, 0o644); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return exitUsage
	}
	return exitOK
}

// runHash prints the SHA-256 of the canonical input. With --receipt the input
// is a receipt and the digest covers only its signed projection, which is the
// evidence hash anchored in the ledger.
func runHash(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var inPath string
	var asReceipt bool
	fs.StringVar(&inPath, "in", "", "input JSON file (- for stdin)")
	fs.BoolVar(&asReceipt, "receipt", false, "hash the signed projection of a receipt")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if inPath == "" {
		fmt.Fprintln(stderr, "hash requires --in")
		return exitUsage
	}

	raw, err := readInput(inPath)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return exitUsage
	}

	var canonical []byte
	if asReceipt {
		var receipt domain.UnsignedReceipt
		if err := json.Unmarshal(raw, &receipt); err != nil {
			fmt.Fprintf(stderr, "decode receipt: %v\n", err)
			return exitInvalid
		}
		canonical, err = crypto.CanonicalizeReceipt(receipt)
	} else {
		canonical, err = crypto.CanonicalizeJSON(raw)
	}
	if err != nil {
		fmt.Fprintf(stderr, "canonicalize: %v\n", err)
		return exitInvalid
	}
	fmt.Fprintln(stdout, crypto.Hash(canonical))
	return exitOK
}
