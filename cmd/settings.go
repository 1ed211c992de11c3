package cmd

import (
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/health"
	"github.com/xetys/kubefleet/pkg/hetzner"
	"github.com/xetys/kubefleet/pkg/phases"
	"github.com/xetys/kubefleet/pkg/retry"
)

// Providers supported by cluster create
const (
	ProviderHetzner = "hetzner"
	ProviderStatic  = "static"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderHetzner)

	v.SetDefault("sizing.cluster_name", "")
	v.SetDefault("sizing.control_plane_count", 1)
	v.SetDefault("sizing.worker_count", 2)
	v.SetDefault("sizing.control_plane_id_base", 100)
	v.SetDefault("sizing.worker_id_base", 110)
	v.SetDefault("sizing.id_block_size", clustermanager.DefaultIDBlockSize)
	v.SetDefault("sizing.ipv4_prefix", "10.10.0.")
	v.SetDefault("sizing.ipv6_prefix", "")
	v.SetDefault("sizing.host_index_base", 20)
	v.SetDefault("sizing.control_plane_resources.cores", 2)
	v.SetDefault("sizing.control_plane_resources.memory_mb", 4096)
	v.SetDefault("sizing.control_plane_resources.disk_gb", 40)
	v.SetDefault("sizing.worker_resources.cores", 2)
	v.SetDefault("sizing.worker_resources.memory_mb", 4096)
	v.SetDefault("sizing.worker_resources.disk_gb", 40)

	v.SetDefault("ssh.user", "root")
	v.SetDefault("ssh.private_key_path", "~/.ssh/id_rsa")
	v.SetDefault("ssh.passphrase", "")

	v.SetDefault("k3s.version", "")
	v.SetDefault("k3s.install_url", clustermanager.DefaultInstallURL)
	v.SetDefault("k3s.sudo", false)

	defaults := retry.DefaultConfig()
	v.SetDefault("retry.timeout", defaults.Timeout)
	v.SetDefault("retry.max_retries", defaults.MaxRetries)
	v.SetDefault("retry.initial_delay", defaults.InitialDelay)
	v.SetDefault("retry.multiplier", defaults.Multiplier)
	v.SetDefault("retry.max_delay", defaults.MaxDelay)

	healthDefaults := health.DefaultConfig()
	v.SetDefault("health.timeout", healthDefaults.Timeout)
	v.SetDefault("health.max_retries", healthDefaults.MaxRetries)
	v.SetDefault("health.initial_delay", healthDefaults.InitialDelay)
	v.SetDefault("health.multiplier", healthDefaults.Multiplier)
	v.SetDefault("health.max_delay", healthDefaults.MaxDelay)

	v.SetDefault("bootstrap.max_parallel", phases.DefaultMaxParallel)
	v.SetDefault("bootstrap.rollback_on_failure", false)

	v.SetDefault("hcloud.token", "")
	v.SetDefault("hcloud.server_type", "cx22")
	v.SetDefault("hcloud.location", "fsn1")
	v.SetDefault("hcloud.image", "ubuntu-22.04")
	v.SetDefault("hcloud.network", "")
	v.SetDefault("hcloud.user_data_file", "")
}

// sizingConfig reads the sizing keys one by one, so values bound to flags apply.
// The cluster name may still be empty.
func sizingConfig(v *viper.Viper) (clustermanager.SizingConfig, error) {
	sizing := clustermanager.SizingConfig{
		ClusterName:        v.GetString("sizing.cluster_name"),
		ControlPlaneCount:  v.GetInt("sizing.control_plane_count"),
		WorkerCount:        v.GetInt("sizing.worker_count"),
		ControlPlaneIDBase: v.GetInt("sizing.control_plane_id_base"),
		WorkerIDBase:       v.GetInt("sizing.worker_id_base"),
		IDBlockSize:        v.GetInt("sizing.id_block_size"),
		IPv4Prefix:         v.GetString("sizing.ipv4_prefix"),
		IPv6Prefix:         v.GetString("sizing.ipv6_prefix"),
		HostIndexBase:      v.GetInt("sizing.host_index_base"),
	}
	sizing.ControlPlaneResources = resourceProfile(v, "sizing.control_plane_resources")
	sizing.WorkerResources = resourceProfile(v, "sizing.worker_resources")
	return sizing, sizing.Validate()
}

func resourceProfile(v *viper.Viper, key string) clustermanager.ResourceProfile {
	return clustermanager.ResourceProfile{
		Cores:    v.GetInt(key + ".cores"),
		MemoryMB: v.GetInt(key + ".memory_mb"),
		DiskGB:   v.GetInt(key + ".disk_gb"),
	}
}

func retryConfig(v *viper.Viper) retry.Config {
	return retryConfigAt(v, "retry")
}

// healthConfig is the polling budget of node readiness and add-on rollouts
func healthConfig(v *viper.Viper) retry.Config {
	return retryConfigAt(v, "health")
}

func retryConfigAt(v *viper.Viper, key string) retry.Config {
	return retry.Config{
		Timeout:      v.GetDuration(key + ".timeout"),
		MaxRetries:   v.GetInt(key + ".max_retries"),
		InitialDelay: v.GetDuration(key + ".initial_delay"),
		Multiplier:   v.GetFloat64(key + ".multiplier"),
		MaxDelay:     v.GetDuration(key + ".max_delay"),
	}
}

func k3sConfig(v *viper.Viper) clustermanager.K3sConfig {
	return clustermanager.K3sConfig{
		Version:    v.GetString("k3s.version"),
		InstallURL: v.GetString("k3s.install_url"),
		Sudo:       v.GetBool("k3s.sudo"),
	}
}

func hetznerConfig(v *viper.Viper, clusterName, sshKeyName string, privateKey []byte) (hetzner.Config, error) {
	config := hetzner.Config{
		ClusterName: clusterName,
		ServerType:  v.GetString("hcloud.server_type"),
		Location:    v.GetString("hcloud.location"),
		Image:       v.GetString("hcloud.image"),
		Network:     v.GetString("hcloud.network"),
		SSHKeyName:  sshKeyName,
		User:        v.GetString("ssh.user"),
		PrivateKey:  privateKey,
	}

	if path := v.GetString("hcloud.user_data_file"); path != "" {
		userData, err := readFile(path)
		if err != nil {
			return config, errors.Wrap(err, "unable to read user data")
		}
		config.UserData = string(userData)
	}
	return config, nil
}

// readFile reads a file, expanding a leading ~
func readFile(path string) ([]byte, error) {
	expanded, err := homedir.Expand(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	return os.ReadFile(expanded)
}
