package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/canonicalize"
)

// runHashCmd computes the canonical request hash of a JSON document, the same
// digest the station compares idempotent replays against.
func runHashCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("hash", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var filePath string
	var showCanonical bool

	cmd.StringVar(&filePath, "file", "", "Path to JSON document (default: read stdin)")
	cmd.BoolVar(&showCanonical, "canonical", false, "Also print the canonical form")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	var data []byte
	var err error
	if filePath != "" {
		data, err = os.ReadFile(filePath)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read document: %v\n", err)
		return 2
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: invalid JSON: %v\n", err)
		return 1
	}

	canonical, err := canonicalize.JCS(doc)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if showCanonical {
		_, _ = fmt.Fprintln(stdout, string(canonical))
	}
	_, _ = fmt.Fprintf(stdout, "sha256:%s\n", canonicalize.HashBytes(canonical))
	return 0
}
