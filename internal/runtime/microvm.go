// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"runcage/internal/command"
	"runcage/internal/execx"
	"runcage/internal/observe"
)

const (
	vmBinary = "ignite"

	// daemonConfigFilename is the name of the generated docker daemon config
	// inside the runner's temp directory.
	daemonConfigFilename = "docker-daemon.json"

	// daemonConfigVMPath is where the VM's docker daemon expects its config.
	daemonConfigVMPath = "/etc/docker/daemon.json"

	// teardownGrace bounds best-effort cleanup once the caller's context is
	// no longer usable.
	teardownGrace = time.Minute
)

// Lifecycle misuse errors. Run is only valid between a successful Setup and
// Teardown; anything else is a caller bug surfaced explicitly rather than
// silently accepted.
var (
	ErrAlreadySetup = errors.New("runner has already been set up")
	ErrNotSetup     = errors.New("runner has not been set up")
	ErrTornDown     = errors.New("runner has been torn down")
)

type vmState int

const (
	stateUninitialized vmState = iota
	stateReady
	stateTornDown
)

// vmRunner owns one named micro-VM and a temp directory holding generated
// support files. Its name must be unique among concurrently live runners;
// that is the caller's invariant, not defended here.
type vmRunner struct {
	name            string
	workspaceDevice string
	logger          *log.Logger
	invoker         Invoker
	options         command.Options

	// tmpDir holds generated support files for the VM's lifetime.
	tmpDir string
	state  vmState
}

var _ Runner = (*vmRunner)(nil)

// dockerDaemonConfig marshals into a valid docker daemon config.
type dockerDaemonConfig struct {
	RegistryMirrors []string `json:"registry-mirrors"`
}

// Setup provisions the virtual machine: it generates the optional docker
// daemon config, boots the VM with resource limits and the workspace device
// attached, and runs the optional startup script inside it. Any failure
// aborts Setup with a wrapped error and performs no partial cleanup; the
// caller either retries Setup or calls Teardown, which cleans up whatever
// the failed attempt left behind.
func (r *vmRunner) Setup(ctx context.Context) error {
	switch r.state {
	case stateReady:
		return ErrAlreadySetup
	case stateTornDown:
		return ErrTornDown
	}

	// A retried Setup after a failure reuses the temp dir the first
	// attempt created.
	if r.tmpDir == "" {
		dir, err := os.MkdirTemp("", "runcage-vm-")
		if err != nil {
			return fmt.Errorf("creating temp dir for vm runner: %w", err)
		}
		r.tmpDir = dir
	}

	var daemonConfigFile string
	if r.options.VM.RegistryMirrorAddress != "" {
		file, err := writeDockerDaemonConfig(r.tmpDir, r.options.VM.RegistryMirrorAddress)
		if err != nil {
			return err
		}
		daemonConfigFile = file
	}

	start := execx.Invocation{
		Key:  "setup.vm.start",
		Args: startArgs(r.name, r.workspaceDevice, daemonConfigFile, r.options),
		Op:   observe.NewOp("setup.vm.start"),
	}
	if _, err := r.invoker.Invoke(ctx, start); err != nil {
		return fmt.Errorf("failed to start virtual machine: %w", err)
	}

	if script := r.options.VM.StartupScriptPath; script != "" {
		startup := execx.Invocation{
			Key:  "setup.startup-script",
			Args: []string{vmBinary, "exec", r.name, "--", script},
			Op:   observe.NewOp("setup.startup-script"),
		}
		if _, err := r.invoker.Invoke(ctx, startup); err != nil {
			// The VM is left running; the caller tears it down.
			return fmt.Errorf("failed to run startup script: %w", err)
		}
	}

	r.state = stateReady
	return nil
}

// Run executes one command inside the VM via the remote-exec boundary.
func (r *vmRunner) Run(ctx context.Context, spec command.Spec) error {
	switch r.state {
	case stateUninitialized:
		return ErrNotSetup
	case stateTornDown:
		return ErrTornDown
	}

	_, err := r.invoker.Invoke(ctx, command.FormatVM(spec, r.name, r.options))
	return err
}

// Teardown removes the virtual machine and the temp directory. Both steps
// are best-effort: a failure is logged and the next step still runs,
// because Teardown executes on cleanup paths where a hard failure would
// mask the job's outcome and leave the remaining resources behind. Leaks on
// teardown failure are caught by external reaping, not here. Calling
// Teardown without a prior successful Setup, or calling it twice, returns
// nil.
func (r *vmRunner) Teardown(ctx context.Context) error {
	if r.state == stateTornDown {
		return nil
	}

	// Cleanup still runs when the caller's context is already cancelled;
	// leaving a VM behind is worse than a slow teardown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownGrace)
	defer cancel()

	remove := execx.Invocation{
		Key:  "teardown.vm.remove",
		Args: []string{vmBinary, "rm", "-f", r.name},
		Op:   observe.NewOp("teardown.vm.remove"),
	}
	if _, err := r.invoker.Invoke(ctx, remove); err != nil {
		r.logger.Error("failed to remove virtual machine", "name", r.name, "err", err)
	}

	if r.tmpDir != "" {
		if err := os.RemoveAll(r.tmpDir); err != nil {
			r.logger.Error("failed to remove vm runner temp dir", "name", r.name, "dir", r.tmpDir, "err", err)
		}
	}

	r.state = stateTornDown
	return nil
}

// writeDockerDaemonConfig persists a daemon config pointing at the registry
// mirror and returns the file's path.
func writeDockerDaemonConfig(tmpDir, mirrorAddress string) (string, error) {
	content, err := json.Marshal(&dockerDaemonConfig{RegistryMirrors: []string{mirrorAddress}})
	if err != nil {
		return "", fmt.Errorf("marshalling docker daemon config: %w", err)
	}

	path := filepath.Join(tmpDir, daemonConfigFilename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing docker daemon config: %w", err)
	}

	return path, nil
}

// startArgs assembles the VM start invocation. The vm image is the trailing
// positional argument; everything else is flags in a fixed order.
func startArgs(name, workspaceDevice, daemonConfigFile string, options command.Options) []string {
	args := []string{
		vmBinary, "run",
		"--runtime", "docker",
		"--network-plugin", "cni",
		"--cpus", strconv.Itoa(options.Resources.NumCPUs),
		"--memory", options.Resources.Memory,
		"--size", options.Resources.DiskSpace,
	}
	args = append(args, copyFilesFlag(options.VM.StartupScriptPath, daemonConfigFile)...)
	args = append(args,
		"--volumes", workspaceDevice+":"+command.WorkspaceMount,
		"--ssh",
		"--name", name,
		"--kernel-image", command.SanitizeImage(options.VM.KernelImage),
		command.SanitizeImage(options.VM.Image),
	)
	return args
}

// copyFilesFlag builds the --copy-files flag for the startup script and the
// generated daemon config. Pairs are sorted lexicographically so the
// invocation is deterministic regardless of which files are present.
func copyFilesFlag(startupScriptPath, daemonConfigFile string) []string {
	pairs := make([]string, 0, 2)
	if startupScriptPath != "" {
		pairs = append(pairs, startupScriptPath+":"+startupScriptPath)
	}
	if daemonConfigFile != "" {
		pairs = append(pairs, daemonConfigFile+":"+daemonConfigVMPath)
	}
	if len(pairs) == 0 {
		return nil
	}

	sort.Strings(pairs)
	return []string{"--copy-files", strings.Join(pairs, ",")}
}
