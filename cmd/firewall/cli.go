package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitInvalid = 2
)

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(args, stderr)
		return exitUsage
	}

	switch args[1] {
	case "keygen":
		return runKeygen(args[2:], stdout, stderr)
	case "canonicalize":
		return runCanonicalize(args[2:], stdout, stderr)
	case "hash":
		return runHash(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	}

	usage(args, stderr)
	return exitUsage
}

func usage(args []string, w io.Writer) {
	name := "firewall"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(w, "usage:\n")
	fmt.Fprintf(w, "  %s keygen --keystore <file>\n", name)
	fmt.Fprintf(w, "  %s canonicalize --in <file.json> [--out <file>]\n", name)
	fmt.Fprintf(w, "  %s hash --in <file.json> [--receipt]\n", name)
	fmt.Fprintf(w, "  %s verify --in <receipt.json> [--pubkey-hex <hex>]\n", name)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
