package cmd

import (
	"context"

	"github.com/hetznercloud/hcloud-go/hcloud"
	"go.uber.org/zap"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// HetznerContext is a named hcloud API token
type HetznerContext struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// SSHKey points to a key pair on the local machine, registered under the same name in hcloud
type SSHKey struct {
	Name           string `json:"name"`
	PrivateKeyPath string `json:"private_key_path"`
	PublicKeyPath  string `json:"public_key_path"`
}

// FleetConfig is the content of ~/.kubefleet/config.json
type FleetConfig struct {
	ActiveContextName string                   `json:"active_context_name"`
	Contexts          []HetznerContext         `json:"contexts"`
	SSHKeys           []SSHKey                 `json:"ssh_keys"`
	Clusters          []clustermanager.Cluster `json:"clusters"`
}

// AppConfig is the state shared by all commands of one invocation
type AppConfig struct {
	Client         *hcloud.Client
	Context        context.Context
	CurrentContext *HetznerContext
	Config         *FleetConfig
	Logger         *zap.SugaredLogger
}
