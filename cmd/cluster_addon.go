package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xetys/kubefleet/pkg/addons"
	"github.com/xetys/kubefleet/pkg/health"
)

// clusterAddonCmd represents the cluster addon command
var clusterAddonCmd = &cobra.Command{
	Use:   "addon",
	Short: "manages addons for k3s clusters",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}

func validateAddonSubCommand(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		return errors.New("flag --name is required")
	}
	if err := validateClusterExists(cmd, []string{name}); err != nil {
		return err
	}

	if len(args) != 1 {
		return errors.New("exactly one argument expected")
	}
	if !addons.NewClusterAddonService(addons.Environment{}).AddonExists(args[0]) {
		return fmt.Errorf("addon %s not found", args[0])
	}
	return nil
}

// addonService connects the add-ons to the primary of a recorded cluster.
// With wait, installs block until the add-on deployments rolled out.
func addonService(cmd *cobra.Command, wait bool) (*addons.ClusterAddonService, error) {
	name, _ := cmd.Flags().GetString("name")
	session, err := loadClusterSession(name)
	if err != nil {
		return nil, err
	}

	manager := newManager(session.cluster, newEventLog())
	env := addons.Environment{Manager: manager, Primary: session.primary}
	if wait {
		credential, err := manager.RetrieveCredential(AppConf.Context, session.primary)
		if err != nil {
			return nil, err
		}
		monitor, err := health.NewMonitorForCredential(credential, newHealthRunner())
		if err != nil {
			return nil, err
		}
		env.Monitor = monitor
	}
	return addons.NewClusterAddonService(env), nil
}

func init() {
	clusterCmd.AddCommand(clusterAddonCmd)
}
