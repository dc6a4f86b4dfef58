package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
)

// skillKitBinary is the opaque external marketplace client spec.md §1 scopes
// out; agentctl shells out to it exactly like `npx skillkit` rather than
// reimplementing the marketplace protocol.
const skillKitBinary = "skillkit"

// runSkillCommand wraps the skill-marketplace subprocess client: it forwards
// the skill name and --format flag and re-emits whatever the subprocess
// writes to stdout, exit code 0 on success and 1 on error per spec.md §6.
func runSkillCommand(cmd *cobra.Command, args []string) error {
	name := args[0]
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmdArgs := []string{"show", name}
	if outputFormat == "json" {
		cmdArgs = append(cmdArgs, "--format", "json")
	}

	sub := exec.CommandContext(ctx, skillKitBinary, cmdArgs...)
	var stdout, stderr bytes.Buffer
	sub.Stdout = &stdout
	sub.Stderr = &stderr

	if err := sub.Run(); err != nil {
		if _, ok := err.(*exec.Error); ok {
			warningColor.Fprintln(os.Stderr, "skillkit is not installed")
			fmt.Fprintln(os.Stderr, "Install it with: npm i -g skillkit")
			fmt.Fprintln(os.Stderr, "Or run via: npx skillkit --help")
			return nil
		}
		return fmt.Errorf("skillkit %s failed: %w: %s", name, err, stderr.String())
	}

	os.Stdout.Write(stdout.Bytes())
	return nil
}
