package clustermanager

import (
	"fmt"
	"strings"
)

const (
	// DefaultInstallURL serves the k3s install script
	DefaultInstallURL = "https://get.k3s.io"
	// APIServerPort is the port servers and agents join on
	APIServerPort = 6443

	nodeTokenPath        = "/var/lib/rancher/k3s/server/node-token"
	kubeconfigPath       = "/etc/rancher/k3s/k3s.yaml"
	serverUninstallPath  = "/usr/local/bin/k3s-uninstall.sh"
	agentUninstallPath   = "/usr/local/bin/k3s-agent-uninstall.sh"
	tokenWaitIterations  = 30
	tokenWaitIntervalSec = 2
)

// K3sConfig renders the remote commands of every phase. All commands are idempotent:
// the install script converges an existing installation and uninstalls are guarded.
type K3sConfig struct {
	// Version pins INSTALL_K3S_VERSION; empty installs the stable channel
	Version string `json:"version,omitempty" mapstructure:"version"`
	// InstallURL defaults to DefaultInstallURL
	InstallURL string `json:"install_url,omitempty" mapstructure:"install_url"`
	// Sudo prefixes privileged commands, for non-root ssh users
	Sudo bool `json:"sudo" mapstructure:"sudo"`
}

func (config K3sConfig) installURL() string {
	if config.InstallURL == "" {
		return DefaultInstallURL
	}
	return config.InstallURL
}

func (config K3sConfig) privileged(command string) string {
	if config.Sudo {
		return "sudo " + command
	}
	return command
}

// install pipes the install script into sh with the given environment and arguments
func (config K3sConfig) install(env []string, args ...string) string {
	if config.Version != "" {
		env = append([]string{"INSTALL_K3S_VERSION=" + shellQuote(config.Version)}, env...)
	}
	script := "sh -s -"
	if len(env) > 0 {
		script = "env " + strings.Join(env, " ") + " " + script
	}
	return fmt.Sprintf("curl -sfL %s | %s %s", shellQuote(config.installURL()), config.privileged(script), strings.Join(args, " "))
}

func nodeArgs(node Node) []string {
	args := []string{
		"--node-name", shellQuote(node.Name),
		"--node-ip", shellQuote(node.IPv4),
	}
	if node.IPv6 != "" {
		args[3] = shellQuote(node.IPv4 + "," + node.IPv6)
	}
	return args
}

// ServerURL is the join endpoint served by the primary
func ServerURL(primary Node) string {
	return fmt.Sprintf("https://%s:%d", primary.IPv4, APIServerPort)
}

// PrerequisitesCommand checks the host tools the install script relies on
func (config K3sConfig) PrerequisitesCommand() RemoteCommand {
	check := "command -v curl >/dev/null || { echo 'curl: command not found' >&2; exit 127; }"
	if config.Sudo {
		check += "; command -v sudo >/dev/null || { echo 'sudo: command not found' >&2; exit 127; }"
	}
	return RemoteCommand{
		EventName: "check prerequisites",
		Create:    check,
	}
}

// PrimaryInitCommand initializes the cluster on the first control-plane node.
// Extra SANs are added to the serving certificate, e.g. a public address.
func (config K3sConfig) PrimaryInitCommand(node Node, sans ...string) RemoteCommand {
	args := append([]string{"server", "--cluster-init"}, nodeArgs(node)...)
	args = append(args, "--tls-san", shellQuote(node.IPv4))
	for _, san := range sans {
		if san != "" && san != node.IPv4 {
			args = append(args, "--tls-san", shellQuote(san))
		}
	}
	return RemoteCommand{
		EventName: "install k3s server (cluster init)",
		Create:    config.install(nil, args...),
		Delete:    config.uninstall(serverUninstallPath),
	}
}

// TokenFetchCommand reads the join token, waiting for the server to write it
func (config K3sConfig) TokenFetchCommand() RemoteCommand {
	script := fmt.Sprintf(
		"i=0; while [ ! -s %[1]s ] && [ $i -lt %[2]d ]; do sleep %[3]d; i=$((i+1)); done; cat %[1]s",
		nodeTokenPath, tokenWaitIterations, tokenWaitIntervalSec,
	)
	return RemoteCommand{
		EventName: "read join token",
		Create:    config.privileged("sh -c " + shellQuote(script)),
	}
}

// SecondaryJoinCommand joins an additional control-plane node to the primary
func (config K3sConfig) SecondaryJoinCommand(node, primary Node, token Secret) RemoteCommand {
	env := []string{"K3S_TOKEN=" + shellQuote(token.Reveal())}
	args := append([]string{"server", "--server", shellQuote(ServerURL(primary))}, nodeArgs(node)...)
	return RemoteCommand{
		EventName: "install k3s server (join)",
		Create:    config.install(env, args...),
		Delete:    config.uninstall(serverUninstallPath),
	}
}

// WorkerJoinCommand joins a worker node as k3s agent
func (config K3sConfig) WorkerJoinCommand(node, primary Node, token Secret) RemoteCommand {
	env := []string{
		"K3S_URL=" + shellQuote(ServerURL(primary)),
		"K3S_TOKEN=" + shellQuote(token.Reveal()),
	}
	args := append([]string{"agent"}, nodeArgs(node)...)
	return RemoteCommand{
		EventName: "install k3s agent",
		Create:    config.install(env, args...),
		Delete:    config.uninstall(agentUninstallPath),
	}
}

// CredentialCommand prints the admin kubeconfig of the primary
func (config K3sConfig) CredentialCommand() RemoteCommand {
	return RemoteCommand{
		EventName: "read kubeconfig",
		Create:    config.privileged("cat " + kubeconfigPath),
	}
}

// UninstallCommand removes k3s from a node; absent installations are a no-op
func (config K3sConfig) UninstallCommand(node Node) RemoteCommand {
	path := agentUninstallPath
	if node.IsControlPlane() {
		path = serverUninstallPath
	}
	return RemoteCommand{
		EventName: "uninstall k3s",
		Create:    config.uninstall(path),
	}
}

// KubectlCommand runs kubectl bundled with k3s on a server node
func (config K3sConfig) KubectlCommand(args ...string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = shellQuote(arg)
	}
	return config.privileged("k3s kubectl " + strings.Join(quoted, " "))
}

func (config K3sConfig) uninstall(path string) string {
	return fmt.Sprintf("[ ! -x %[1]s ] || %[2]s", path, config.privileged(path))
}

// shellQuote quotes s for POSIX shells
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
