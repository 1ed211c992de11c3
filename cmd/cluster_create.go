package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/health"
	"github.com/xetys/kubefleet/pkg/phases"
	"github.com/xetys/kubefleet/pkg/retry"
)

// clusterCreateCmd represents the clusterCreate command
var clusterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "creates a cluster",
	Long: `This command lets you create k3s clusters with one or more control-plane nodes.

The most simple command is: kubefleet cluster create -k YOUR-SSH-KEY-NAME --network YOUR-NETWORK
The network must exist in the project and contain the sizing.ipv4_prefix range.
This will create a cluster of one control-plane node and 2 workers with a random name.

You can specify a name using -n or --name.

Nodes are named <name>-master, <name>-master-2, ... and <name>-worker-1, ... and get their
private address from the sizing configuration (sizing.ipv4_prefix, sizing.host_index_base).

With --provider static no machines are created; the nodes must already be reachable over SSH,
at their allocated address or at the one given by --host NODE=ADDRESS.
	`,
	PreRunE: validateClusterCreateFlags,
	RunE:    RunClusterCreate,
}

// RunClusterCreate executes the cluster creation
func RunClusterCreate(cmd *cobra.Command, args []string) error {
	clusterName, _ := cmd.Flags().GetString("name")
	if clusterName == "" {
		clusterName = viper.GetString("sizing.cluster_name")
	}
	if clusterName == "" {
		clusterName = randomName()
	}

	sizing, err := sizingConfig(viper.GetViper())
	if err != nil {
		return err
	}
	sizing.ClusterName = clusterName
	nodes, err := clustermanager.Allocate(sizing)
	if err != nil {
		return err
	}

	sshKeyName, _ := cmd.Flags().GetString("ssh-key")
	key, err := privateKey(sshKeyName)
	if err != nil {
		return err
	}

	cluster := &clustermanager.Cluster{
		Name:       clusterName,
		Sizing:     sizing,
		Nodes:      nodes,
		Provider:   viper.GetString("provider"),
		K3s:        k3sConfig(viper.GetViper()),
		SSHKeyName: sshKeyName,
		SSHUser:    viper.GetString("ssh.user"),
		CreatedAt:  time.Now().UTC(),
	}

	hosts, _ := cmd.Flags().GetStringToString("host")
	provisioner, err := newProvisioner(cluster, key, hosts)
	if err != nil {
		return err
	}

	AppConf.Logger.Infow("creating new cluster",
		"name", clusterName,
		"provider", cluster.Provider,
		"control_planes", sizing.ControlPlaneCount,
		"workers", sizing.WorkerCount,
	)

	coordinator, events := newObservers(nodes, bootstrapSteps)
	manager := newManager(cluster, events)

	ctx, stop := signal.NotifyContext(AppConf.Context, os.Interrupt)
	defer stop()

	provision, bootstrap, err := phases.Bootstrap(ctx, manager, provisioner, nodes, graphOptions(events))
	coordinator.Stop()
	if err != nil {
		return err
	}

	if targets, targetsErr := phases.Targets(provision, nodes); targetsErr == nil {
		cluster.SetTargets(targets)
	}
	if err := saveCluster(cluster); err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if err := writeReport(path, provision, bootstrap); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("metrics-file"); path != "" {
		if err := retry.WriteTextfile(manager.Runner(), "kubefleet", path); err != nil {
			return err
		}
	}

	if bootstrap == nil {
		printFailures(provision)
		return fmt.Errorf("provisioning of cluster '%s' failed", clusterName)
	}
	if !bootstrap.Bootstrapped() {
		printFailures(bootstrap)
		fmt.Printf("%d of %d phases succeeded\n", bootstrap.Count(phases.StatusSucceeded), len(bootstrap.Results))
		return fmt.Errorf("cluster '%s' is not fully bootstrapped", clusterName)
	}

	credential, err := phases.Credential(bootstrap)
	if err != nil {
		return err
	}

	if save, _ := cmd.Flags().GetBool("save-kubeconfig"); save {
		target := defaultKubeconfigPath(clusterName)
		if err := doConfigWrite(target, credential.Kubeconfig.Reveal()); err != nil {
			return err
		}
		AppConf.Logger.Infow("kubeconfig saved", "path", target)
	}

	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		if err := waitForNodes(ctx, credential, newHealthRunner(), nodes); err != nil {
			return errors.Wrapf(err, "cluster '%s' was bootstrapped but its nodes did not become ready", clusterName)
		}
	}

	fmt.Printf("Cluster %s successfully created!\n", clusterName)
	return nil
}

func waitForNodes(ctx context.Context, credential clustermanager.AccessCredential, runner *retry.Runner, nodes []clustermanager.Node) error {
	monitor, err := health.NewMonitorForCredential(credential, runner)
	if err != nil {
		return err
	}
	names := make([]string, len(nodes))
	for i, node := range nodes {
		names[i] = node.Name
	}
	return monitor.WaitForNodesReady(ctx, names)
}

// bootstrapSteps is the number of phases that report a node's progress
func bootstrapSteps(node clustermanager.Node) int {
	if node.IsPrimary() {
		// provision, primary-init, token-fetch, credential-retrieval
		return 4
	}
	// provision, join
	return 2
}

func bindSizingFlags(cmd *cobra.Command) error {
	bindings := map[string]string{
		"sizing.control_plane_count": "master-count",
		"sizing.worker_count":        "worker-count",
		"provider":                   "provider",
		"k3s.version":                "k3s-version",
		"ssh.user":                   "ssh-user",
		"hcloud.network":             "network",
	}
	for key, flag := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func addSizingFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("name", "n", "", "Name of the cluster")
	cmd.Flags().IntP("master-count", "m", 1, "Number of control-plane nodes")
	cmd.Flags().IntP("worker-count", "w", 2, "Number of worker nodes for the cluster")
}

func validateClusterCreateFlags(cmd *cobra.Command, args []string) error {
	if err := bindSizingFlags(cmd); err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = viper.GetString("sizing.cluster_name")
	}
	if name != "" {
		if idx, _ := AppConf.Config.FindClusterByName(name); idx != -1 {
			return fmt.Errorf("cluster '%s' already exists", name)
		}
	}

	switch viper.GetString("provider") {
	case ProviderHetzner:
		sshKey, _ := cmd.Flags().GetString("ssh-key")
		if sshKey == "" {
			return errors.New("flag --ssh-key is required")
		}
		if idx, _ := AppConf.Config.FindSSHKeyByName(sshKey); idx == -1 {
			return fmt.Errorf("SSH key '%s' not found", sshKey)
		}
		if viper.GetString("hcloud.network") == "" {
			return errors.New("flag --network (or hcloud.network) is required: nodes are reached by their allocated private address")
		}
	case ProviderStatic:
	default:
		return fmt.Errorf("provider must be %s or %s", ProviderHetzner, ProviderStatic)
	}

	sizing, err := sizingConfig(viper.GetViper())
	if err != nil {
		return err
	}
	// a random name is always a valid slug
	if name == "" {
		sizing.ClusterName = clustermanager.DefaultClusterName
	} else {
		sizing.ClusterName = name
	}
	return sizing.Validate()
}

func init() {
	clusterCmd.AddCommand(clusterCreateCmd)

	addSizingFlags(clusterCreateCmd)
	clusterCreateCmd.Flags().StringP("ssh-key", "k", "", "Name of the SSH key used for provisioning")
	clusterCreateCmd.Flags().String("provider", ProviderHetzner, "Machine provider: hetzner or static")
	clusterCreateCmd.Flags().StringToString("host", nil, "SSH address of a node for the static provider, as NODE=ADDRESS")
	clusterCreateCmd.Flags().String("network", "", "hcloud private network the servers are attached to")
	clusterCreateCmd.Flags().String("ssh-user", "root", "SSH user of the nodes")
	clusterCreateCmd.Flags().String("k3s-version", "", "k3s version to install, default is the stable channel")
	clusterCreateCmd.Flags().Bool("wait", true, "wait for all nodes to become ready")
	clusterCreateCmd.Flags().Bool("save-kubeconfig", false, "save the kubeconfig to ~/.kube/<name>.yaml")
	clusterCreateCmd.Flags().String("report", "", "write the phase report as yaml to this file")
	clusterCreateCmd.Flags().String("metrics-file", "", "write retry metrics in the Prometheus text format to this file")
}
