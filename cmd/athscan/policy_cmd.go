package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/audit"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/config"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/policy"
)

// runPolicyCmd implements `athscan policy <validate|activate|show|history>`.
func runPolicyCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: athscan policy <validate|activate|show|history>")
		return 2
	}

	switch args[0] {
	case "validate":
		return runPolicyValidate(args[1:], stdout, stderr)
	case "activate":
		return runPolicyActivate(args[1:], stdout, stderr)
	case "show":
		return runPolicyShow(args[1:], stdout, stderr)
	case "history":
		return runPolicyHistory(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown policy command: %s\n", args[0])
		return 2
	}
}

// runPolicyValidate checks a policy document against the schema and the
// engine version constraint without touching any store.
func runPolicyValidate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("policy validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var filePath string
	var jsonOutput bool

	cmd.StringVar(&filePath, "file", "", "Path to policy YAML (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if filePath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -file is required")
		return 2
	}

	doc, err := policy.LoadFile(filePath)
	if err != nil {
		if jsonOutput {
			out, _ := json.MarshalIndent(map[string]any{
				"valid": false,
				"error": err.Error(),
			}, "", "  ")
			_, _ = fmt.Fprintln(stdout, string(out))
		} else {
			_, _ = fmt.Fprintf(stdout, "%s✗ Invalid policy:%s %s\n", ColorRed, ColorReset, filePath)
			_, _ = fmt.Fprintf(stdout, "   %v\n", err)
		}
		return 1
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(map[string]any{
			"valid":  true,
			"name":   doc.Name,
			"engine": doc.Engine,
			"policy": doc.Policy,
		}, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
	} else {
		name := doc.Name
		if name == "" {
			name = filePath
		}
		_, _ = fmt.Fprintf(stdout, "%s✓ Valid policy:%s %s\n", ColorGreen, ColorReset, name)
		if doc.Engine != "" {
			_, _ = fmt.Fprintf(stdout, "   Engine constraint: %s (this engine is %s)\n", doc.Engine, policy.EngineVersion)
		}
		printPolicyFields(stdout, doc.Policy)
	}
	return 0
}

// runPolicyActivate appends a validated document as the new active version in
// the durable store.
func runPolicyActivate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("policy activate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var filePath string
	var identity string

	cmd.StringVar(&filePath, "file", "", "Path to policy YAML (REQUIRED)")
	cmd.StringVar(&identity, "identity", "", "Caller identity for audit")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if filePath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -file is required")
		return 2
	}

	doc, err := policy.LoadFile(filePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := openDatabase(ctx, config.Load())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	provider := policy.NewSQLProvider(db)
	if err := provider.Init(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	version, err := provider.Activate(ctx, doc.Policy)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	_ = audit.NewLoggerWithWriter(stderr).Record(ctx, audit.EventPolicy, identity, "activate_policy",
		fmt.Sprintf("version-%d", version), map[string]any{
			"name": doc.Name,
			"file": filePath,
		})

	_, _ = fmt.Fprintf(stdout, "%s✓ Activated policy version %d%s\n", ColorGreen, version, ColorReset)
	if doc.Name != "" {
		_, _ = fmt.Fprintf(stdout, "   Name: %s\n", doc.Name)
	}
	return 0
}

// runPolicyShow prints the active policy version, or the built-in default
// when no version has been activated yet.
func runPolicyShow(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("policy show", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	db, err := openDatabase(ctx, config.Load())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	provider := policy.NewSQLProvider(db)
	if err := provider.Init(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	v, err := provider.ActiveVersion(ctx)
	if errors.Is(err, policy.ErrNoActivePolicy) {
		v = policy.Version{Version: 0, Policy: policy.Default()}
	} else if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(v, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
		return 0
	}

	if v.Version == 0 {
		_, _ = fmt.Fprintf(stdout, "%sActive policy:%s built-in default (no version activated)\n", ColorBold, ColorReset)
	} else {
		_, _ = fmt.Fprintf(stdout, "%sActive policy:%s version %d (activated %s)\n",
			ColorBold, ColorReset, v.Version, v.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	printPolicyFields(stdout, v.Policy)
	return 0
}

// runPolicyHistory lists every activation, oldest first.
func runPolicyHistory(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("policy history", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	db, err := openDatabase(ctx, config.Load())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	provider := policy.NewSQLProvider(db)
	if err := provider.Init(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	versions, err := provider.Versions(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(versions, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
		return 0
	}

	if len(versions) == 0 {
		_, _ = fmt.Fprintln(stdout, "No policy versions activated; the built-in default is in effect.")
		return 0
	}
	for _, v := range versions {
		marker := " "
		if v.Active {
			marker = "*"
		}
		_, _ = fmt.Fprintf(stdout, "%s v%-4d %s  tracking=%s missing_gs=%s expiry_required=%t no_block=%t\n",
			marker, v.Version, v.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			v.Policy.TrackingPolicy, v.Policy.MissingGSBehavior, v.Policy.ExpiryRequired, v.Policy.NoBlock)
	}
	return 0
}

// printPolicyFields renders the policy knobs one per line.
func printPolicyFields(w io.Writer, p policy.Policy) {
	_, _ = fmt.Fprintf(w, "   expiry_required:            %t\n", p.ExpiryRequired)
	_, _ = fmt.Fprintf(w, "   tracking_policy:            %s\n", p.TrackingPolicy)
	_, _ = fmt.Fprintf(w, "   missing_gs_behavior:        %s\n", p.MissingGSBehavior)
	_, _ = fmt.Fprintf(w, "   accept_numeric_as_gtin:     %t\n", p.AcceptNumericAsGTIN)
	_, _ = fmt.Fprintf(w, "   enforce_gtin_checkdigit:    %t\n", p.EnforceGTINCheckdigit)
	_, _ = fmt.Fprintf(w, "   near_expiry_threshold_days: %d\n", p.NearExpiryThresholdDays)
	_, _ = fmt.Fprintf(w, "   near_expiry_severity:       %s\n", p.NearExpirySeverity)
	_, _ = fmt.Fprintf(w, "   allow_commit_on_warn:       %t\n", p.AllowCommitOnWarn)
	_, _ = fmt.Fprintf(w, "   no_block:                   %t\n", p.NoBlock)
}
