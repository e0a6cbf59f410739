// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"runcage/internal/execx"
)

// WorkspaceMount is the fixed mount point for the workspace inside a
// container and inside the micro-VM.
const WorkspaceMount = "/work"

// vmBinary is the CLI driving the micro-VM lifecycle.
const vmBinary = "ignite"

// Format converts a Spec into the literal invocation to issue on the host.
// If the spec carries no image, the result is a direct argv in the resolved
// working directory with the spec's environment applied out-of-band (to the
// child process, never embedded in the command line). If it carries an
// image, the result is a one-shot `docker run` invocation: environment as
// -e flags, workspace mounted at WorkspaceMount, working directory set
// inside the container, sanitized image reference, then the command tokens
// or in-container script path.
//
// Formatting is a pure transformation; it performs no I/O and cannot fail
// on well-formed input.
func Format(spec Spec, dir string, options Options) execx.Invocation {
	if spec.Image == "" {
		return execx.Invocation{
			Key:  spec.Key,
			Args: spec.Command,
			Dir:  filepath.Join(dir, spec.Dir),
			Env:  spec.Env,
			Op:   spec.Op,
		}
	}

	hostDir := dir
	if options.Resources.HostMountPath != "" {
		hostDir = filepath.Join(options.Resources.HostMountPath, filepath.Base(dir))
	}

	args := []string{"docker", "run", "--rm"}
	args = append(args, dockerResourceFlags(options.Resources)...)
	args = append(args, "-v", hostDir+":"+WorkspaceMount)
	args = append(args, "-w", filepath.Join(WorkspaceMount, spec.Dir))
	for _, env := range spec.Env {
		args = append(args, "-e", env)
	}
	if spec.ScriptPath != "" {
		args = append(args, "--entrypoint", "/bin/sh")
	}
	args = append(args, SanitizeImage(spec.Image))
	if spec.ScriptPath != "" {
		args = append(args, filepath.Join(WorkspaceMount, spec.ScriptPath))
	} else {
		args = append(args, spec.Command...)
	}

	return execx.Invocation{
		Key:  spec.Key,
		Args: args,
		Op:   spec.Op,
	}
}

// FormatVM converts a Spec into the remote-exec invocation for the micro-VM
// with the given name. The VM-side command is first formatted by Format
// (against the fixed in-VM workspace mount) and then collapsed into one
// shell-quoted string, because the remote-exec transport accepts a single
// string rather than an argv.
//
// The inner string is assembled in a fixed order: environment assignments,
// then an optional `cd <dir> &&` clause, then the quoted command. Only the
// direct (non-containerized) path carries environment assignments: there
// is no out-of-band environment channel across the remote-exec boundary, so
// each variable is individually quoted and prepended. The containerized
// path already carries its environment as -e flags.
func FormatVM(spec Spec, name string, options Options) execx.Invocation {
	inner := Format(spec, WorkspaceMount, options)

	quoted := quoteTokens(inner.Args)
	if len(inner.Env) > 0 {
		quoted = fmt.Sprintf("%s %s", strings.Join(quoteEnv(inner.Env), " "), quoted)
	}
	if inner.Dir != "" {
		quoted = fmt.Sprintf("cd %s && %s", quoteToken(inner.Dir), quoted)
	}

	return execx.Invocation{
		Key:  spec.Key,
		Args: []string{vmBinary, "exec", name, "--", quoted},
		Op:   spec.Op,
	}
}

func dockerResourceFlags(res ResourceOptions) []string {
	var flags []string
	if res.NumCPUs > 0 {
		flags = append(flags, "--cpus", strconv.Itoa(res.NumCPUs))
	}
	if res.Memory != "" {
		flags = append(flags, "--memory", res.Memory)
	}
	return flags
}

// quoteTokens joins argv into a single string, quoting each token so that
// arguments containing spaces or shell metacharacters survive a trip
// through a POSIX shell unchanged.
func quoteTokens(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, quoteToken(arg))
	}
	return strings.Join(quoted, " ")
}

// quoteEnv quotes the value part of each NAME=VALUE pair so the assignments
// can be prepended to a shell command line.
func quoteEnv(env []string) []string {
	quoted := make([]string, 0, len(env))
	for _, kv := range env {
		name, value, found := strings.Cut(kv, "=")
		if !found {
			quoted = append(quoted, quoteToken(kv))
			continue
		}
		quoted = append(quoted, name+"="+quoteToken(value))
	}
	return quoted
}

func quoteToken(s string) string {
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err != nil {
		// Quote only fails on NUL bytes, which no shell can carry anyway.
		q, _ = syntax.Quote(strings.ReplaceAll(s, "\x00", ""), syntax.LangPOSIX)
	}
	return q
}
