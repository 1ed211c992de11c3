package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hetznercloud/hcloud-go/hcloud"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// DefaultConfigPath is the directory holding config.json
var DefaultConfigPath string

// AppConf is the application state of the running command
var AppConf = AppConfig{Context: context.Background()}

// WriteCurrentConfig persists the config into DefaultConfigPath
func (config FleetConfig) WriteCurrentConfig() error {
	configFileName := filepath.Join(DefaultConfigPath, "config.json")
	configJSON, err := json.MarshalIndent(&config, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(DefaultConfigPath, 0700); err != nil {
		return err
	}
	// tokens are stored in clear text
	return os.WriteFile(configFileName, configJSON, 0600)
}

// AddContext adds a context
func (config *FleetConfig) AddContext(context HetznerContext) {
	for i, v := range config.Contexts {
		if v.Name == context.Name {
			config.Contexts[i] = context
			return
		}
	}
	config.Contexts = append(config.Contexts, context)
}

// DeleteContext removes a context by name
func (config *FleetConfig) DeleteContext(name string) error {
	for i, v := range config.Contexts {
		if v.Name == name {
			config.Contexts = append(config.Contexts[:i], config.Contexts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("context '%s' not found", name)
}

// AddSSHKey adds a key
func (config *FleetConfig) AddSSHKey(key SSHKey) {
	config.SSHKeys = append(config.SSHKeys, key)
}

// DeleteSSHKey removes a key by name
func (config *FleetConfig) DeleteSSHKey(name string) error {
	index, _ := config.FindSSHKeyByName(name)
	if index == -1 {
		return errors.New("ssh key not found")
	}

	config.SSHKeys = append(config.SSHKeys[:index], config.SSHKeys[index+1:]...)
	return nil
}

// FindSSHKeyByName returns the index and key of that name, or -1
func (config *FleetConfig) FindSSHKeyByName(name string) (int, *SSHKey) {
	for i, v := range config.SSHKeys {
		if v.Name == name {
			key := v
			return i, &key
		}
	}
	return -1, nil
}

// AddCluster adds or replaces a cluster record
func (config *FleetConfig) AddCluster(cluster clustermanager.Cluster) {
	for i, v := range config.Clusters {
		if v.Name == cluster.Name {
			config.Clusters[i] = cluster
			return
		}
	}

	config.Clusters = append(config.Clusters, cluster)
}

// FindClusterByName returns the index and record of that cluster, or -1
func (config *FleetConfig) FindClusterByName(name string) (int, *clustermanager.Cluster) {
	for i, cluster := range config.Clusters {
		if cluster.Name == name {
			return i, &config.Clusters[i]
		}
	}
	return -1, nil
}

// DeleteCluster removes a cluster record
func (config *FleetConfig) DeleteCluster(name string) error {
	index, _ := config.FindClusterByName(name)
	if index == -1 {
		return fmt.Errorf("cluster '%s' not found", name)
	}

	config.Clusters = append(config.Clusters[:index], config.Clusters[index+1:]...)
	return nil
}

// SwitchContextByName activates a context and creates its hcloud client
func (app *AppConfig) SwitchContextByName(name string) error {
	ctx, err := app.FindContextByName(name)
	if err != nil {
		return err
	}

	app.CurrentContext = ctx
	app.Config.ActiveContextName = ctx.Name
	app.Client = hcloud.NewClient(hcloud.WithToken(ctx.Token), hcloud.WithApplication("kubefleet", version))

	return nil
}

// FindContextByName returns the context of that name
func (app *AppConfig) FindContextByName(name string) (*HetznerContext, error) {
	for _, ctx := range app.Config.Contexts {
		if ctx.Name == name {
			found := ctx
			return &found, nil
		}
	}

	return nil, fmt.Errorf("context '%s' not found", name)
}

// DeleteContextByName removes a context
func (app *AppConfig) DeleteContextByName(name string) error {
	return app.Config.DeleteContext(name)
}

func (app *AppConfig) assertActiveContext() error {
	if app.CurrentContext == nil {
		return errors.New("no context selected, add one with 'kubefleet context add'")
	}
	return nil
}

func defaultConfigPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kubefleet"), nil
}

// loadConfig reads config.json, creating an empty one on first use
func loadConfig() (*FleetConfig, error) {
	configFileName := filepath.Join(DefaultConfigPath, "config.json")

	content, err := os.ReadFile(configFileName)
	if os.IsNotExist(err) {
		config := &FleetConfig{}
		return config, config.WriteCurrentConfig()
	}
	if err != nil {
		return nil, err
	}

	config := &FleetConfig{}
	if err := json.Unmarshal(content, config); err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", configFileName)
	}
	return config, nil
}
