// SPDX-License-Identifier: MPL-2.0

package command

import "runcage/internal/observe"

type (
	// Spec describes one unit of work. If Image is set, the command runs in
	// a one-shot docker container (on the host tier directly, or inside the
	// micro-VM on the VM tier); otherwise it runs as a plain process. A Spec
	// is owned by the caller and read-only here.
	Spec struct {
		// Key is a stable identifier for tracing and log correlation.
		Key string
		// Image is the container image to run in, or "" for a direct run.
		Image string
		// ScriptPath is a script inside the workspace to execute instead of
		// Command. Only meaningful together with Image.
		ScriptPath string
		// Command is the argv to execute.
		Command []string
		// Dir is the working directory, relative to the workspace root.
		Dir string
		// Env holds NAME=VALUE pairs applied to the command.
		Env []string
		// Op is an opaque tracing handle passed through to the execution
		// primitive.
		Op *observe.Op
	}

	// Options configures both isolation tiers for the lifetime of a runner.
	Options struct {
		// ExecutorName uniquely identifies the requesting executor. The
		// micro-VM is named after it, so two concurrently live runners must
		// not share a name; keeping names unique is the caller's job.
		ExecutorName string

		// VM configures micro-VM provisioning.
		VM VMOptions

		// Resources configures resource limits applied to containers and
		// micro-VMs.
		Resources ResourceOptions
	}

	// VMOptions configures the micro-VM tier.
	VMOptions struct {
		// Enabled selects the micro-VM tier; when false, commands run on the
		// host (optionally containerized).
		Enabled bool
		// Image is the base image for new virtual machines.
		Image string
		// KernelImage is the image containing the kernel binary.
		KernelImage string
		// StartupScriptPath is an executable on the host copied into each
		// fresh VM and executed after boot. Optional.
		StartupScriptPath string
		// RegistryMirrorAddress configures a docker registry mirror for the
		// VM's docker daemon. When set, a generated daemon config is copied
		// to /etc/docker/daemon.json inside the VM. Optional.
		RegistryMirrorAddress string
	}

	// ResourceOptions are the resource limits for containers and VMs.
	// Quantity strings are passed through verbatim; validating them is the
	// caller's responsibility.
	ResourceOptions struct {
		// NumCPUs is the number of virtual CPUs.
		NumCPUs int
		// Memory is the maximum amount of memory (e.g. "12G").
		Memory string
		// DiskSpace is the maximum amount of disk (e.g. "20G").
		DiskSpace string
		// HostMountPath, if set, replaces the workspace parent directory in
		// container volume mounts. Used when the workspace path seen by the
		// docker daemon differs from the path seen by this process.
		HostMountPath string
	}
)
