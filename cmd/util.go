package cmd

import (
	"fmt"
	"os"

	"github.com/Pallinder/go-randomdata"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/xetys/kubefleet/pkg"
	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/hetzner"
	"github.com/xetys/kubefleet/pkg/phases"
	"github.com/xetys/kubefleet/pkg/retry"
)

func randomName() string {
	return fmt.Sprintf("%s-%s", slug(randomdata.Adjective()), slug(randomdata.Noun()))
}

func slug(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		}
	}
	return string(out)
}

// Sdump renders a structure as yaml
func Sdump(v interface{}) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		AppConf.Logger.Errorw("unable to render yaml", "error", err)
		return ""
	}
	return string(data)
}

func saveCluster(cluster *clustermanager.Cluster) error {
	AppConf.Config.AddCluster(*cluster)
	return AppConf.Config.WriteCurrentConfig()
}

// privateKey reads the private key of a configured ssh key, or ssh.private_key_path
func privateKey(sshKeyName string) ([]byte, error) {
	path := viper.GetString("ssh.private_key_path")
	if sshKeyName != "" {
		if _, key := AppConf.Config.FindSSHKeyByName(sshKeyName); key != nil {
			path = key.PrivateKeyPath
		}
	}
	key, err := readFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read private key")
	}
	return key, nil
}

func newCommunicator() *clustermanager.SSHCommunicator {
	var passphrase []byte
	if p := viper.GetString("ssh.passphrase"); p != "" {
		passphrase = []byte(p)
	}
	return clustermanager.NewSSHCommunicator(passphrase)
}

// newProvisioner creates the provisioner of a cluster record
func newProvisioner(cluster *clustermanager.Cluster, key []byte, hosts map[string]string) (clustermanager.Provisioner, error) {
	switch cluster.Provider {
	case ProviderStatic:
		return &clustermanager.StaticProvisioner{User: cluster.SSHUser, PrivateKey: key, Hosts: hosts}, nil
	case ProviderHetzner:
		if err := AppConf.assertActiveContext(); err != nil {
			return nil, err
		}
		config, err := hetznerConfig(viper.GetViper(), cluster.Name, cluster.SSHKeyName, key)
		if err != nil {
			return nil, err
		}
		return hetzner.NewHetznerProvider(AppConf.Client, config), nil
	default:
		return nil, fmt.Errorf("unknown provider '%s'", cluster.Provider)
	}
}

// newObservers creates the event observers of a run: progress bars and the log
func newObservers(nodes []clustermanager.Node, steps func(clustermanager.Node) int) (*pkg.ProgressCoordinator, clustermanager.EventService) {
	coordinator := pkg.NewProgressCoordinator(os.Stdout, !DebugMode)
	for _, node := range nodes {
		coordinator.StartProgress(node.Name, steps(node))
	}
	return coordinator, clustermanager.FanOut{coordinator, pkg.NewEventLog(AppConf.Logger)}
}

func newManager(cluster *clustermanager.Cluster, events clustermanager.EventService) *clustermanager.Manager {
	runner := retry.NewRunner(retry.WithConfig(retryConfig(viper.GetViper())))
	return clustermanager.NewClusterManager(newCommunicator(), runner, events, clustermanager.ManagerOptions{
		K3s:               cluster.K3s,
		RollbackOnFailure: viper.GetBool("bootstrap.rollback_on_failure"),
		ClusterName:       cluster.Name,
	})
}

func newHealthRunner() *retry.Runner {
	return retry.NewRunner(retry.WithConfig(healthConfig(viper.GetViper())))
}

func graphOptions(events clustermanager.EventService) phases.GraphOptions {
	return phases.GraphOptions{
		MaxParallel:  viper.GetInt("bootstrap.max_parallel"),
		EventService: events,
	}
}

// writeReport writes the summaries of a run as yaml
func writeReport(path string, reports ...*phases.Report) error {
	var summaries []phases.Summary
	for _, report := range reports {
		if report != nil {
			summaries = append(summaries, report.Summary())
		}
	}
	data, err := yaml.Marshal(summaries)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// printFailures prints every failed or skipped phase with its remediation
func printFailures(report *phases.Report) {
	for _, phase := range report.Summary().Phases {
		switch phase.Status {
		case phases.StatusFailed:
			fmt.Printf("%s failed (%s): %s\n", phase.Phase, phase.Category, phase.Error)
			for _, hint := range phase.Remediation {
				fmt.Printf("  - %s\n", hint)
			}
		case phases.StatusSkipped, phases.StatusCancelled:
			fmt.Printf("%s %s: %s\n", phase.Phase, phase.Status, phase.Cause)
		}
	}
}

func validateClusterExists(cmd *cobra.Command, args []string) error {
	if len(args) == 0 || args[0] == "" {
		return errors.New("cluster name is required")
	}
	if idx, _ := AppConf.Config.FindClusterByName(args[0]); idx == -1 {
		return fmt.Errorf("cluster '%s' not found", args[0])
	}
	return nil
}

// clusterSession is a recorded cluster with the targets of its nodes
type clusterSession struct {
	cluster *clustermanager.Cluster
	key     []byte
	targets []clustermanager.Target
	primary clustermanager.Target
}

func loadClusterSession(name string) (*clusterSession, error) {
	_, cluster := AppConf.Config.FindClusterByName(name)
	if cluster == nil {
		return nil, fmt.Errorf("cluster '%s' not found", name)
	}
	key, err := privateKey(cluster.SSHKeyName)
	if err != nil {
		return nil, err
	}

	session := &clusterSession{cluster: cluster, key: key, targets: cluster.Targets(key)}
	for _, target := range session.targets {
		if target.Node.IsPrimary() {
			session.primary = target
			return session, nil
		}
	}
	return nil, errors.Wrapf(clustermanager.ErrNoPrimary, "cluster '%s'", name)
}

// hosts returns the recorded hosts as used by the static provisioner
func (session *clusterSession) hosts() map[string]string {
	hosts := make(map[string]string, len(session.cluster.Hosts))
	for _, host := range session.cluster.Hosts {
		hosts[host.Name] = host.Host
	}
	return hosts
}

func newEventLog() clustermanager.EventService {
	return pkg.NewEventLog(AppConf.Logger)
}
