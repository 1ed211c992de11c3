package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/phases"
)

// clusterAddWorkerCmd represents the clusterAddWorker command
var clusterAddWorkerCmd = &cobra.Command{
	Use:   "add-worker <CLUSTER NAME>",
	Short: "add worker nodes",
	Long: `Adds n nodes as worker nodes to the cluster.

The new workers get the next free identities of the cluster's sizing, are provisioned
like in cluster create and join with a freshly read token.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateClusterExists,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeCount, _ := cmd.Flags().GetInt("nodes")
		if nodeCount < 1 {
			return errors.New("flag --nodes must be at least 1")
		}

		session, err := loadClusterSession(args[0])
		if err != nil {
			return err
		}
		cluster := session.cluster

		nodes, sizing, err := nextWorkers(*cluster, nodeCount)
		if err != nil {
			return err
		}

		hosts, _ := cmd.Flags().GetStringToString("host")
		provisioner, err := newProvisioner(cluster, session.key, hosts)
		if err != nil {
			return err
		}

		coordinator, events := newObservers(nodes, func(clustermanager.Node) int { return 2 })
		manager := newManager(cluster, events)

		ctx, stop := signal.NotifyContext(AppConf.Context, os.Interrupt)
		defer stop()

		provision, join, err := phases.ScaleOut(ctx, manager, provisioner, session.primary, nodes, graphOptions(events))
		coordinator.Stop()
		if err != nil {
			return err
		}
		if join == nil {
			printFailures(provision)
			return errors.New("provisioning of the new workers failed")
		}

		// record every joined worker, even when others failed
		targets, _ := phases.Targets(provision, nodes)
		for _, target := range targets {
			if result, ok := join.Result(phases.InstanceName(phases.KindWorkerJoin, target.Node.Name)); ok && result.Status == phases.StatusSucceeded {
				cluster.Nodes = append(cluster.Nodes, target.Node)
				cluster.Hosts = append(cluster.Hosts, clustermanager.NodeHost{Name: target.Node.Name, Host: target.Host, Port: target.Port})
			}
		}
		cluster.Sizing = sizing
		if err := saveCluster(cluster); err != nil {
			return err
		}

		if !join.Bootstrapped() {
			printFailures(join)
			return fmt.Errorf("%d of %d workers could not join", join.Count(phases.StatusFailed)+join.Count(phases.StatusSkipped), len(nodes))
		}
		AppConf.Logger.Infow("workers created successfully", "cluster", cluster.Name, "count", len(nodes))
		return nil
	},
}

// nextWorkers allocates count workers that are not part of the cluster yet,
// along with the sizing that covers them
func nextWorkers(cluster clustermanager.Cluster, count int) ([]clustermanager.Node, clustermanager.SizingConfig, error) {
	existing := map[string]bool{}
	for _, node := range cluster.Nodes {
		existing[node.Name] = true
	}

	sizing := cluster.Sizing
	sizing.WorkerCount += count
	allocated, err := clustermanager.Allocate(sizing)
	if err != nil {
		return nil, sizing, err
	}

	var nodes []clustermanager.Node
	for _, node := range allocated {
		if !existing[node.Name] && len(nodes) < count {
			nodes = append(nodes, node)
		}
	}
	return nodes, sizing, nil
}

func init() {
	clusterCmd.AddCommand(clusterAddWorkerCmd)

	clusterAddWorkerCmd.Flags().IntP("nodes", "n", 1, "Number of workers to add")
	clusterAddWorkerCmd.Flags().StringToString("host", nil, "SSH address of a new node for the static provider, as NODE=ADDRESS")
}
