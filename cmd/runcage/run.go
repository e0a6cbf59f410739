// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"runcage/internal/command"
	"runcage/internal/config"
	"runcage/internal/execx"
	"runcage/internal/observe"
	"runcage/internal/runtime"
)

var (
	runImage     string
	runScript    string
	runDir       string
	runEnv       []string
	runKey       string
	runWorkspace string
	runCmdString string

	runCmd = &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Execute one command in the configured isolation tier",
		Long: `Execute one command in the configured isolation tier.

The command is given either as positional arguments after "--" or as a
single shell-style string via -c (split with POSIX shell word rules).
When --image is set the command runs in a one-shot container; when the
vm tier is enabled the whole execution happens inside a fresh micro-VM
that is provisioned before and removed after the run.`,
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().StringVar(&runImage, "image", "", "container image to run the command in")
	runCmd.Flags().StringVar(&runScript, "script", "", "script path inside the workspace to execute (requires --image)")
	runCmd.Flags().StringVar(&runDir, "dir", "", "working directory relative to the workspace root")
	runCmd.Flags().StringArrayVarP(&runEnv, "env", "e", nil, "environment variable NAME=VALUE (repeatable)")
	runCmd.Flags().StringVar(&runKey, "key", "run", "identifying key for log correlation")
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "workspace directory or device (overrides config)")
	runCmd.Flags().StringVarP(&runCmdString, "command", "c", "", "command as a single shell-style string")
}

func runRun(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if runScript != "" && runImage == "" {
		return errors.New("--script requires --image")
	}

	argv, err := commandArgv(args)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose || verbose)

	workspace := cfg.Workspace
	if runWorkspace != "" {
		workspace = runWorkspace
	}

	spec := command.Spec{
		Key:        runKey,
		Image:      runImage,
		ScriptPath: runScript,
		Command:    argv,
		Dir:        runDir,
		Env:        runEnv,
		Op:         observe.NewOp(runKey),
	}

	invoker := execx.New(logger, execx.WithRecorder(observe.LogRecorder{Logger: logger}))
	runner := runtime.NewRunner(workspace, logger, invoker, cfg.Options())

	ctx := cmd.Context()
	if err := runner.Setup(ctx); err != nil {
		// Setup may have partially provisioned; Teardown is safe regardless.
		if terr := runner.Teardown(ctx); terr != nil {
			logger.Error("teardown after failed setup", "err", terr)
		}
		return err
	}

	runErr := runner.Run(ctx, spec)

	if err := runner.Teardown(ctx); err != nil {
		logger.Error("teardown failed", "err", err)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return runErr
	}

	return nil
}

// commandArgv resolves the command either from -c (split with shell word
// rules) or from the positional arguments.
func commandArgv(args []string) ([]string, error) {
	if runCmdString != "" {
		if len(args) > 0 {
			return nil, errors.New("pass the command either via -c or as positional arguments, not both")
		}
		argv, err := shlex.Split(runCmdString)
		if err != nil {
			return nil, fmt.Errorf("splitting command string: %w", err)
		}
		if len(argv) == 0 {
			return nil, errors.New("command string is empty")
		}
		return argv, nil
	}

	if len(args) == 0 && runScript == "" {
		return nil, errors.New("no command given")
	}
	return args, nil
}

func newLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "runcage",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}
