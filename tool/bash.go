package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/mgreenly/ikigai-sub013/coding/permission"
)

type BashParams struct {
	Command    string `json:"command" jsonschema:"required,description=Shell command to execute"`
	WorkingDir string `json:"working_dir,omitempty" jsonschema:"description=Directory to run the command in; defaults to the current directory"`
}

type bashResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitStatus int    `json:"exit_status"`
}

// RunBash executes a shell command via `bash -c`, logging the individual
// commands tree-sitter-bash extracts from the script for audit purposes
// before running it, mirroring coding/unix's RunCommandActivity.
func RunBash(ctx context.Context, argsJSON string) (string, bool, error) {
	var p BashParams
	if err := json.Unmarshal([]byte(argsJSON), &p); err != nil {
		return fmt.Sprintf("invalid arguments: %v", err), true, nil
	}
	if p.Command == "" {
		return "command is required", true, nil
	}
	workingDir := p.WorkingDir
	if workingDir == "" {
		workingDir = "."
	}

	for _, cmd := range permission.ExtractCommands(p.Command) {
		log.Debug().Str("command", cmd).Msg("extracted bash subcommand")
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", p.Command)
	cmd.Dir = workingDir

	filteredEnv := make([]string, 0, len(os.Environ()))
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "IKIGAI_") {
			continue
		}
		filteredEnv = append(filteredEnv, e)
	}
	cmd.Env = filteredEnv

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitStatus := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return "", true, runErr
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			exitStatus = status.ExitStatus()
		}
	}

	out, err := json.Marshal(bashResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitStatus: exitStatus})
	if err != nil {
		return "", true, err
	}
	return string(out), exitStatus != 0, nil
}
