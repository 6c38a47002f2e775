package main

import (
	"fmt"
	"io"
	"os"

	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/policy"

	_ "github.com/lib/pq" // Postgres Driver
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
//
// Exit codes across all commands:
//
//	0 = success (decide/evaluate: PASS or WARN; commit: accepted)
//	1 = gate failure (decide/evaluate: BLOCK; commit: rejected; policy validate: invalid)
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "normalize":
		return runNormalizeCmd(args[2:], stdout, stderr)
	case "segment":
		return runSegmentCmd(args[2:], stdout, stderr)
	case "decide":
		return runDecideCmd(args[2:], stdout, stderr)
	case "evaluate":
		return runEvaluateCmd(args[2:], stdout, stderr)
	case "commit":
		return runCommitCmd(args[2:], stdout, stderr)
	case "policy":
		return runPolicyCmd(args[2:], stdout, stderr)
	case "hash":
		return runHashCmd(args[2:], stdout, stderr)
	case "version":
		_, _ = fmt.Fprintf(stdout, "athscan engine v%s\n", policy.EngineVersion)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sathscan %s%s\n", ColorBold+ColorBlue, "v"+policy.EngineVersion, ColorReset)
	_, _ = fmt.Fprintf(w, "%sGS1/UDI scan gate for warehouse receiving.%s\n", ColorGray, ColorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	_, _ = fmt.Fprintln(w, "  athscan <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "PARSING (offline, no store)")
	printCommand(w, "normalize", "Strip scanner framing from a raw payload (-raw, -json)")
	printCommand(w, "segment", "Split a payload into AI segments (-raw, -mode)")
	printCommand(w, "decide", "Grade a payload against a policy (-raw, -policy, -mode, -no-block, -now)")

	printSection(w, "STATION (durable store, idempotent)")
	printCommand(w, "evaluate", "Parse, grade, and persist a scan (-raw, -key, -identity)")
	printCommand(w, "commit", "Post an evaluated scan (-scan, -intent, -key, -identity)")

	printSection(w, "POLICY")
	printCommand(w, "policy", "validate | activate | show | history")

	printSection(w, "UTILITIES")
	printCommand(w, "hash", "Canonical request hash of a JSON document (-file or stdin)")
	printCommand(w, "version", "Show engine version")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sENVIRONMENT:%s DATABASE_URL, DATABASE_DRIVER, REDIS_ADDR, POLICY_FILE,\n", ColorBold, ColorReset)
	_, _ = fmt.Fprintln(w, "  RATE_LIMIT_RPS, RATE_LIMIT_BURST, IDEMPOTENCY_TTL, OTEL_EXPORTER_OTLP_ENDPOINT")
	_, _ = fmt.Fprintln(w, "  Station commands fall back to a local SQLite file when DATABASE_URL is unset.")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}
