package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"

	"github.com/cosu123/reality-firewall-v3/internal/infra/crypto"
	"github.com/cosu123/reality-firewall-v3/internal/infra/keys/soft"
)

// runKeygen creates the keystore if absent and prints the agent public key.
// An existing keystore is never overwritten.
func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path string
	fs.StringVar(&path, "keystore", "", "keystore file path")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if path == "" {
		fmt.Fprintln(stderr, "keygen requires --keystore")
		return exitUsage
	}

	key, err := soft.NewKeyStore(path).Init(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "init keystore: %v\n", err)
		return exitUsage
	}
	fmt.Fprintf(stdout, "keystore=%s\n", path)
	fmt.Fprintf(stdout, "alg=%s\n", key.Alg)
	fmt.Fprintf(stdout, "public_key_hex=%s\n", hex.EncodeToString(key.PublicKey))
	fmt.Fprintf(stdout, "created_at=%s\n", crypto.FormatTime(key.CreatedAt))
	return exitOK
}
