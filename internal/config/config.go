// SPDX-License-Identifier: MPL-2.0

// Package config loads executor options from a TOML file and RUNCAGE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"runcage/internal/command"
)

const (
	// AppName is the application name.
	AppName = "runcage"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "runcage"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "toml"

	envPrefix = "RUNCAGE"
)

type (
	// Config is the full executor configuration.
	Config struct {
		// ExecutorName uniquely identifies this executor. It doubles as the
		// micro-VM name, so concurrently running executors need distinct
		// names.
		ExecutorName string `mapstructure:"executor_name"`
		// Workspace is the directory (host tier) or block device (VM tier)
		// holding the job's files.
		Workspace string `mapstructure:"workspace"`
		// Verbose enables debug logging.
		Verbose bool `mapstructure:"verbose"`

		Resources ResourcesConfig `mapstructure:"resources"`
		VM        VMConfig        `mapstructure:"vm"`
	}

	// ResourcesConfig holds the resource limits applied to containers and
	// micro-VMs. Quantity strings are passed to the container/VM runtime
	// verbatim.
	ResourcesConfig struct {
		CPUs          int    `mapstructure:"cpus"`
		Memory        string `mapstructure:"memory"`
		DiskSpace     string `mapstructure:"disk_space"`
		HostMountPath string `mapstructure:"host_mount_path"`
	}

	// VMConfig controls the micro-VM tier.
	VMConfig struct {
		Enabled        bool   `mapstructure:"enabled"`
		Image          string `mapstructure:"image"`
		KernelImage    string `mapstructure:"kernel_image"`
		StartupScript  string `mapstructure:"startup_script"`
		RegistryMirror string `mapstructure:"registry_mirror"`
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	name := AppName
	if host, err := os.Hostname(); err == nil {
		name = AppName + "-" + host
	}

	return &Config{
		ExecutorName: name,
		Workspace:    ".",
		Resources: ResourcesConfig{
			CPUs:      4,
			Memory:    "12G",
			DiskSpace: "20G",
		},
		VM: VMConfig{
			Image:       "weaveworks/ignite-ubuntu:latest",
			KernelImage: "weaveworks/ignite-kernel:5.10.51",
		},
	}
}

// Load reads configuration from the given file path, or, when path is
// empty, from runcage.toml in the current directory or the platform config
// directory. Environment variables (RUNCAGE_VM_ENABLED, ...) override file
// values. Missing config files are not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType(ConfigFileExt)
		v.AddConfigPath(".")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the constraints the runner layer relies on.
func (c *Config) Validate() error {
	if c.ExecutorName == "" {
		return errors.New("executor_name must not be empty")
	}
	if c.VM.Enabled {
		if c.VM.Image == "" {
			return errors.New("vm.image must be set when the vm tier is enabled")
		}
		if c.VM.KernelImage == "" {
			return errors.New("vm.kernel_image must be set when the vm tier is enabled")
		}
		if c.Resources.Memory == "" || c.Resources.DiskSpace == "" {
			return errors.New("resources.memory and resources.disk_space must be set when the vm tier is enabled")
		}
	}
	return nil
}

// Options maps the configuration to runner options.
func (c *Config) Options() command.Options {
	return command.Options{
		ExecutorName: c.ExecutorName,
		VM: command.VMOptions{
			Enabled:               c.VM.Enabled,
			Image:                 c.VM.Image,
			KernelImage:           c.VM.KernelImage,
			StartupScriptPath:     c.VM.StartupScript,
			RegistryMirrorAddress: c.VM.RegistryMirror,
		},
		Resources: command.ResourceOptions{
			NumCPUs:       c.Resources.CPUs,
			Memory:        c.Resources.Memory,
			DiskSpace:     c.Resources.DiskSpace,
			HostMountPath: c.Resources.HostMountPath,
		},
	}
}

func setDefaults(v *viper.Viper, defaults *Config) {
	v.SetDefault("executor_name", defaults.ExecutorName)
	v.SetDefault("workspace", defaults.Workspace)
	v.SetDefault("verbose", defaults.Verbose)
	v.SetDefault("resources.cpus", defaults.Resources.CPUs)
	v.SetDefault("resources.memory", defaults.Resources.Memory)
	v.SetDefault("resources.disk_space", defaults.Resources.DiskSpace)
	v.SetDefault("resources.host_mount_path", defaults.Resources.HostMountPath)
	v.SetDefault("vm.enabled", defaults.VM.Enabled)
	v.SetDefault("vm.image", defaults.VM.Image)
	v.SetDefault("vm.kernel_image", defaults.VM.KernelImage)
	v.SetDefault("vm.startup_script", defaults.VM.StartupScript)
	v.SetDefault("vm.registry_mirror", defaults.VM.RegistryMirror)
}

// configDir returns the platform config directory for runcage: %APPDATA% on
// Windows, ~/Library/Application Support on macOS, $XDG_CONFIG_HOME
// (defaulting to ~/.config) elsewhere.
func configDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
		if dir == "" {
			dir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support")
	default:
		dir = os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("getting home directory: %w", err)
			}
			dir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(dir, AppName), nil
}
