package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/client-go/tools/clientcmd"
)

// clusterKubeconfigCmd represents the clusterKubeconfig command
var clusterKubeconfigCmd = &cobra.Command{
	Use:   "kubeconfig <CLUSTER NAME>",
	Short: "setups the kubeconfig for the local machine",
	Long: `fetches the kubeconfig (e.g. for usage with kubectl) and saves it to ~/.kube/config, or prints it.

Example 1: kubefleet cluster kubeconfig my-cluster                        # prints the kubeconfig of the cluster "my-cluster"
Example 2: kubefleet cluster kubeconfig my-cluster > my-conf.yaml         # prints the contents of kubeconfig into a custom file
Example 3: kubefleet cluster kubeconfig my-cluster -s -t ./my-conf.yaml   # saves the contents of kubeconfig into a custom file
Example 4: kubefleet cluster kubeconfig my-cluster -m                     # merges the existing with current cluster (creates backup before merge)
    `,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateClusterExists,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := loadClusterSession(args[0])
		if err != nil {
			return err
		}

		manager := newManager(session.cluster, nil)
		credential, err := manager.RetrieveCredential(AppConf.Context, session.primary)
		if err != nil {
			return err
		}
		kubeConfig := credential.Kubeconfig.Reveal()

		if merge, _ := cmd.Flags().GetBool("merge"); merge {
			home, err := homedir.Dir()
			if err != nil {
				return err
			}
			kubeConfigPath := filepath.Join(home, ".kube", "config")
			if _, err := os.Stat(kubeConfigPath); err == nil {
				if err := doConfigCopy(kubeConfigPath); err != nil {
					return err
				}
			}
			return doConfigMerge(kubeConfigPath, kubeConfig)
		}

		if save, _ := cmd.Flags().GetBool("save"); save {
			targetPath := defaultKubeconfigPath(session.cluster.Name)
			if target, _ := cmd.Flags().GetString("target"); target != "" {
				targetPath = target
			}
			AppConf.Logger.Infow("saving kubeconfig", "path", targetPath)
			return doConfigWrite(targetPath, kubeConfig)
		}

		fmt.Println(kubeConfig)
		return nil
	},
}

func defaultKubeconfigPath(clusterName string) string {
	home, err := homedir.Dir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".kube", clusterName+".yaml")
}

// Write kubeConfig to destination
func doConfigWrite(dst string, kubeConfig string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(kubeConfig), 0600)
}

// Create backup of current kubeConfig
func doConfigCopy(src string) (err error) {
	var source, destination *os.File
	if source, err = os.Open(src); err != nil {
		return
	}
	defer source.Close()

	dst := fmt.Sprintf("%s/config.%s", filepath.Dir(src), time.Now().Format("20060102150405"))
	if destination, err = os.Create(dst); err != nil {
		return
	}
	defer destination.Close()

	if _, err = io.Copy(destination, source); err == nil {
		AppConf.Logger.Infow("kubeconfig backup saved", "path", dst)
	}
	return
}

// doConfigMerge adds the cluster, user and context of kubeConfig to the file at dst
// and makes its context current
func doConfigMerge(dst string, kubeConfig string) error {
	incoming, err := clientcmd.Load([]byte(kubeConfig))
	if err != nil {
		return errors.Wrap(err, "kubeconfig could not be parsed")
	}

	existing, err := clientcmd.LoadFromFile(dst)
	if os.IsNotExist(err) {
		return doConfigWrite(dst, kubeConfig)
	}
	if err != nil {
		return errors.Wrapf(err, "unable to read %s", dst)
	}

	for name, cluster := range incoming.Clusters {
		existing.Clusters[name] = cluster
	}
	for name, authInfo := range incoming.AuthInfos {
		existing.AuthInfos[name] = authInfo
	}
	for name, context := range incoming.Contexts {
		existing.Contexts[name] = context
	}
	existing.CurrentContext = incoming.CurrentContext

	return clientcmd.WriteToFile(*existing, dst)
}

func init() {
	clusterCmd.AddCommand(clusterKubeconfigCmd)

	clusterKubeconfigCmd.Flags().BoolP("merge", "m", false, "merges .kube/config with my-cluster config")
	clusterKubeconfigCmd.Flags().BoolP("save", "s", false, "saves current config to target location")
	clusterKubeconfigCmd.Flags().StringP("target", "t", "", "saves current config to target location (if not set, default to ~/.kube/my-cluster.yaml)")
}
