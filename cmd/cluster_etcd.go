package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

var etcdCmd = &cobra.Command{
	Use:   "etcd",
	Short: "backup and restore the embedded etcd of a cluster",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}

var backupCmd = &cobra.Command{
	Use:     "backup <CLUSTER NAME>",
	Short:   "creates a snapshot of the etcd datastore. If no name is provided, a current datetime string is used",
	Args:    cobra.ExactArgs(1),
	PreRunE: validateClusterExists,
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshotName, _ := cmd.Flags().GetString("snapshot-name")
		etcdManager, session, err := getEtcdManager(args[0])
		if err != nil {
			return err
		}

		name, err := etcdManager.CreateSnapshot(AppConf.Context, session.primary, snapshotName)
		if err != nil {
			return err
		}
		AppConf.Logger.Infow("snapshot created", "cluster", args[0], "name", name)
		return nil
	},
}

var snapshotsCmd = &cobra.Command{
	Use:     "snapshots <CLUSTER NAME>",
	Short:   "lists the snapshots stored on the primary",
	Args:    cobra.ExactArgs(1),
	PreRunE: validateClusterExists,
	RunE: func(cmd *cobra.Command, args []string) error {
		etcdManager, session, err := getEtcdManager(args[0])
		if err != nil {
			return err
		}

		out, err := etcdManager.ListSnapshots(AppConf.Context, session.primary)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <CLUSTER NAME>",
	Short: "restores the etcd datastore from a snapshot file",
	Long: `Stops every control-plane node, resets the primary from the snapshot and lets the other
control-plane nodes rejoin. Use the file name as printed by 'kubefleet cluster etcd snapshots'.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateClusterExists,
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshotName, _ := cmd.Flags().GetString("snapshot-name")
		etcdManager, session, err := getEtcdManager(args[0])
		if err != nil {
			return err
		}

		if err := etcdManager.RestoreSnapshot(AppConf.Context, session.primary, session.targets, snapshotName); err != nil {
			return err
		}
		AppConf.Logger.Infow("snapshot restored", "cluster", args[0], "name", snapshotName)
		return nil
	},
}

// getEtcdManager returns an instance of a configured EtcdManager
func getEtcdManager(name string) (*clustermanager.EtcdManager, *clusterSession, error) {
	session, err := loadClusterSession(name)
	if err != nil {
		return nil, nil, err
	}
	return clustermanager.NewEtcdManager(newManager(session.cluster, newEventLog())), session, nil
}

func init() {
	clusterCmd.AddCommand(etcdCmd)
	etcdCmd.AddCommand(backupCmd, snapshotsCmd, restoreCmd)

	backupCmd.Flags().StringP("snapshot-name", "n", "", "Name of the snapshot")
	restoreCmd.Flags().StringP("snapshot-name", "n", "", "File name of the snapshot")
	_ = restoreCmd.MarkFlagRequired("snapshot-name")
}
