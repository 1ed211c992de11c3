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

// clusterRemoveWorkerCmd represents the command for removing workers
var clusterRemoveWorkerCmd = &cobra.Command{
	Use:   "remove-worker <CLUSTER NAME>",
	Short: "remove a worker from the cluster",
	Long: `Uninstalls k3s from the worker, deletes its node object and releases the machine.

Example: kubefleet cluster remove-worker my-cluster -w my-cluster-worker-2`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateClusterExists(cmd, args); err != nil {
			return err
		}
		workerName, _ := cmd.Flags().GetString("worker")
		if workerName == "" {
			return errors.New("worker name cannot be empty")
		}

		_, cluster := AppConf.Config.FindClusterByName(args[0])
		for _, node := range cluster.Nodes {
			if node.Name == workerName {
				if node.IsControlPlane() {
					return fmt.Errorf("'%s' is a control-plane node", workerName)
				}
				return nil
			}
		}
		return fmt.Errorf("node '%s' not found", workerName)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		workerName, _ := cmd.Flags().GetString("worker")
		session, err := loadClusterSession(args[0])
		if err != nil {
			return err
		}
		cluster := session.cluster

		var worker []clustermanager.Target
		for _, target := range session.targets {
			if target.Node.Name == workerName {
				worker = append(worker, target)
			}
		}

		var provisioner clustermanager.Provisioner
		if keep, _ := cmd.Flags().GetBool("keep-machine"); !keep {
			if provisioner, err = newProvisioner(cluster, session.key, session.hosts()); err != nil {
				return err
			}
		}

		// uninstall, delete-node, deprovision
		coordinator, events := newObservers([]clustermanager.Node{worker[0].Node}, func(clustermanager.Node) int { return 3 })
		manager := newManager(cluster, events)
		graph, err := phases.ShrinkGraph(manager, provisioner, session.primary, worker, graphOptions(events))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(AppConf.Context, os.Interrupt)
		defer stop()

		report, err := graph.Run(ctx)
		coordinator.Stop()
		if err != nil {
			return err
		}
		if !report.Succeeded() {
			printFailures(report)
			return fmt.Errorf("node '%s' was not fully removed", workerName)
		}

		for idx, node := range cluster.Nodes {
			if node.Name == workerName {
				cluster.Nodes = append(cluster.Nodes[:idx], cluster.Nodes[idx+1:]...)
				break
			}
		}
		for idx, host := range cluster.Hosts {
			if host.Name == workerName {
				cluster.Hosts = append(cluster.Hosts[:idx], cluster.Hosts[idx+1:]...)
				break
			}
		}
		if err := saveCluster(cluster); err != nil {
			return err
		}

		AppConf.Logger.Infow("node deleted successfully", "cluster", cluster.Name, "node", workerName)
		return nil
	},
}

func init() {
	clusterCmd.AddCommand(clusterRemoveWorkerCmd)

	clusterRemoveWorkerCmd.Flags().StringP("worker", "w", "", "The name of the worker to remove")
	clusterRemoveWorkerCmd.Flags().Bool("keep-machine", false, "only uninstall k3s, do not delete the machine")
}
