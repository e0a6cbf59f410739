// SPDX-License-Identifier: MPL-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ExecutorName == "" {
		t.Error("ExecutorName is empty")
	}
	if !strings.HasPrefix(cfg.ExecutorName, AppName) {
		t.Errorf("ExecutorName = %q, want %q prefix", cfg.ExecutorName, AppName)
	}
	if cfg.Workspace != "." {
		t.Errorf("Workspace = %q, want .", cfg.Workspace)
	}
	if cfg.VM.Enabled {
		t.Error("vm tier enabled by default")
	}
	if cfg.Resources.CPUs != 4 {
		t.Errorf("CPUs = %d, want 4", cfg.Resources.CPUs)
	}
	if cfg.Resources.Memory != "12G" || cfg.Resources.DiskSpace != "20G" {
		t.Errorf("Memory/DiskSpace = %q/%q, want 12G/20G", cfg.Resources.Memory, cfg.Resources.DiskSpace)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfigFile(t, `
executor_name = "executor-7"
workspace = "/dev/sdb1"
verbose = true

[resources]
cpus = 8
memory = "16G"
disk_space = "40G"
host_mount_path = "/mnt/executor"

[vm]
enabled = true
image = "ignite-ubuntu:focal"
kernel_image = "ignite-kernel:5.10"
startup_script = "/opt/startup.sh"
registry_mirror = "http://mirror.local"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ExecutorName != "executor-7" {
		t.Errorf("ExecutorName = %q, want executor-7", cfg.ExecutorName)
	}
	if cfg.Workspace != "/dev/sdb1" {
		t.Errorf("Workspace = %q, want /dev/sdb1", cfg.Workspace)
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true")
	}
	if cfg.Resources.CPUs != 8 || cfg.Resources.Memory != "16G" || cfg.Resources.DiskSpace != "40G" {
		t.Errorf("resources = %+v, want 8/16G/40G", cfg.Resources)
	}
	if cfg.Resources.HostMountPath != "/mnt/executor" {
		t.Errorf("HostMountPath = %q, want /mnt/executor", cfg.Resources.HostMountPath)
	}
	if !cfg.VM.Enabled || cfg.VM.Image != "ignite-ubuntu:focal" || cfg.VM.KernelImage != "ignite-kernel:5.10" {
		t.Errorf("vm = %+v", cfg.VM)
	}
	if cfg.VM.StartupScript != "/opt/startup.sh" || cfg.VM.RegistryMirror != "http://mirror.local" {
		t.Errorf("vm = %+v", cfg.VM)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("got nil, want an error for a missing explicit config file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RUNCAGE_EXECUTOR_NAME", "env-executor")
	t.Setenv("RUNCAGE_VM_ENABLED", "true")
	t.Setenv("RUNCAGE_VM_IMAGE", "ignite-ubuntu:env")
	t.Setenv("RUNCAGE_VM_KERNEL_IMAGE", "ignite-kernel:env")
	t.Setenv("RUNCAGE_RESOURCES_CPUS", "16")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ExecutorName != "env-executor" {
		t.Errorf("ExecutorName = %q, want env-executor", cfg.ExecutorName)
	}
	if !cfg.VM.Enabled {
		t.Error("vm tier not enabled from environment")
	}
	if cfg.VM.Image != "ignite-ubuntu:env" || cfg.VM.KernelImage != "ignite-kernel:env" {
		t.Errorf("vm images = %q/%q", cfg.VM.Image, cfg.VM.KernelImage)
	}
	if cfg.Resources.CPUs != 16 {
		t.Errorf("CPUs = %d, want 16", cfg.Resources.CPUs)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `executor_name = "file-executor"`)
	t.Setenv("RUNCAGE_EXECUTOR_NAME", "env-executor")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ExecutorName != "env-executor" {
		t.Errorf("ExecutorName = %q, want the environment to win over the file", cfg.ExecutorName)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty executor name",
			mutate:  func(c *Config) { c.ExecutorName = "" },
			wantErr: "executor_name",
		},
		{
			name: "vm tier without image",
			mutate: func(c *Config) {
				c.VM.Enabled = true
				c.VM.Image = ""
			},
			wantErr: "vm.image",
		},
		{
			name: "vm tier without kernel image",
			mutate: func(c *Config) {
				c.VM.Enabled = true
				c.VM.KernelImage = ""
			},
			wantErr: "vm.kernel_image",
		},
		{
			name: "vm tier without memory",
			mutate: func(c *Config) {
				c.VM.Enabled = true
				c.Resources.Memory = ""
			},
			wantErr: "resources.memory",
		},
		{
			name: "missing images allowed when vm tier disabled",
			mutate: func(c *Config) {
				c.VM.Image = ""
				c.VM.KernelImage = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ExecutorName: "executor-7",
		Resources: ResourcesConfig{
			CPUs:          8,
			Memory:        "16G",
			DiskSpace:     "40G",
			HostMountPath: "/mnt/executor",
		},
		VM: VMConfig{
			Enabled:        true,
			Image:          "ignite-ubuntu:focal",
			KernelImage:    "ignite-kernel:5.10",
			StartupScript:  "/opt/startup.sh",
			RegistryMirror: "http://mirror.local",
		},
	}

	opts := cfg.Options()
	if opts.ExecutorName != "executor-7" {
		t.Errorf("ExecutorName = %q", opts.ExecutorName)
	}
	if !opts.VM.Enabled || opts.VM.Image != "ignite-ubuntu:focal" || opts.VM.KernelImage != "ignite-kernel:5.10" {
		t.Errorf("VM options = %+v", opts.VM)
	}
	if opts.VM.StartupScriptPath != "/opt/startup.sh" || opts.VM.RegistryMirrorAddress != "http://mirror.local" {
		t.Errorf("VM options = %+v", opts.VM)
	}
	if opts.Resources.NumCPUs != 8 || opts.Resources.Memory != "16G" || opts.Resources.DiskSpace != "40G" {
		t.Errorf("resource options = %+v", opts.Resources)
	}
	if opts.Resources.HostMountPath != "/mnt/executor" {
		t.Errorf("HostMountPath = %q", opts.Resources.HostMountPath)
	}
}
