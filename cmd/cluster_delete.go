package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/phases"
)

// clusterDeleteCmd represents the clusterDelete command
var clusterDeleteCmd = &cobra.Command{
	Use:   "delete <CLUSTER NAME>",
	Short: "removes k3s from every node and deletes the associated machines",
	Long: `Uninstalls k3s from all workers and secondary control-plane nodes, then from the primary.
Each machine is released after its own uninstall succeeded; with --keep-machines they are left running.

With --force k3s is not uninstalled: every machine is released right away and the cluster
record is dropped. Use it for clusters whose nodes cannot be reached any more.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateClusterExists,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		session, err := loadClusterSession(name)
		if err != nil {
			return err
		}

		var provisioner clustermanager.Provisioner
		if keep, _ := cmd.Flags().GetBool("keep-machines"); !keep {
			if provisioner, err = newProvisioner(session.cluster, session.key, session.hosts()); err != nil {
				return err
			}
		}

		force, _ := cmd.Flags().GetBool("force")
		steps := teardownSteps(provisioner != nil)
		if force {
			steps = func(clustermanager.Node) int { return 1 }
		}

		coordinator, events := newObservers(session.cluster.Nodes, steps)
		manager := newManager(session.cluster, events)

		var graph *phases.Graph
		switch {
		case force && provisioner == nil:
			coordinator.Stop()
			return dropCluster(name)
		case force:
			graph = phases.DeprovisionGraph(manager, provisioner, session.cluster.Nodes, graphOptions(events))
		default:
			if graph, err = phases.TeardownGraph(manager, provisioner, session.targets, graphOptions(events)); err != nil {
				coordinator.Stop()
				return err
			}
		}

		ctx, stop := signal.NotifyContext(AppConf.Context, os.Interrupt)
		defer stop()

		report, err := graph.Run(ctx)
		coordinator.Stop()
		if err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("report"); path != "" {
			if err := writeReport(path, report); err != nil {
				return err
			}
		}
		if !report.Succeeded() {
			printFailures(report)
			return fmt.Errorf("cluster '%s' was not fully removed", name)
		}

		return dropCluster(name)
	},
}

// dropCluster removes the cluster from the list
func dropCluster(name string) error {
	if err := AppConf.Config.DeleteCluster(name); err != nil {
		return err
	}
	if err := AppConf.Config.WriteCurrentConfig(); err != nil {
		return err
	}

	AppConf.Logger.Infow("cluster deleted", "name", name)
	return nil
}

func teardownSteps(deprovision bool) func(clustermanager.Node) int {
	return func(clustermanager.Node) int {
		if deprovision {
			return 2
		}
		return 1
	}
}

func init() {
	clusterCmd.AddCommand(clusterDeleteCmd)

	clusterDeleteCmd.Flags().Bool("keep-machines", false, "only uninstall k3s, do not delete the machines")
	clusterDeleteCmd.Flags().Bool("force", false, "release the machines without uninstalling k3s and drop the cluster record")
	clusterDeleteCmd.Flags().String("report", "", "write the phase report as yaml to this file")
}
