package clustermanager

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"time"

	"github.com/pkg/errors"
)

// Phase kinds of snapshot operations
const (
	PhaseEtcdSnapshot = "etcd-snapshot"
	PhaseEtcdRestore  = "etcd-restore"

	serverDBPath    = "/var/lib/rancher/k3s/server/db"
	snapshotDirPath = serverDBPath + "/snapshots"
)

var snapshotNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// EtcdManager is a tool which provides basic backup & restore functionality for the
// embedded etcd that primary-init creates with --cluster-init
type EtcdManager struct {
	manager *Manager
	now     func() time.Time
}

// NewEtcdManager returns a new instance of EtcdManager
func NewEtcdManager(manager *Manager) *EtcdManager {
	return &EtcdManager{manager: manager, now: time.Now}
}

// CreateSnapshot creates a snapshot with a name. If name is empty, a datetime string is generated.
// k3s stores the snapshot as <name>-<node>-<timestamp> below the snapshot directory.
func (etcd *EtcdManager) CreateSnapshot(ctx context.Context, primary Target, name string) (string, error) {
	if name == "" {
		name = generateName(etcd.now())
	}
	if err := validateSnapshotName(name); err != nil {
		return "", err
	}

	_, err := etcd.manager.run(ctx, PhaseEtcdSnapshot, primary, etcd.k3s().SnapshotSaveCommand(name))
	return name, err
}

// ListSnapshots returns the snapshot table printed by k3s
func (etcd *EtcdManager) ListSnapshots(ctx context.Context, primary Target) (string, error) {
	out, err := etcd.manager.run(ctx, PhaseEtcdSnapshot, primary, etcd.k3s().SnapshotListCommand())
	return out.Reveal(), err
}

// RestoreSnapshot resets the cluster to a snapshot file of the primary. Every server is
// stopped, the primary is reset from the snapshot and the other servers rejoin with an
// empty datastore. Workers keep running.
func (etcd *EtcdManager) RestoreSnapshot(ctx context.Context, primary Target, servers []Target, file string) error {
	if !primary.Node.IsPrimary() {
		return ErrNoPrimary
	}
	if err := validateSnapshotName(file); err != nil {
		return err
	}
	k3s := etcd.k3s()

	if _, err := etcd.manager.run(ctx, PhaseEtcdRestore, primary, k3s.SnapshotExistsCommand(file)); err != nil {
		return errors.Wrapf(err, "could not find snapshot '%s' on %s", file, primary.Node.Name)
	}

	secondaries := make([]Target, 0, len(servers))
	for _, server := range servers {
		if server.Node.IsControlPlane() && !server.Node.IsPrimary() {
			secondaries = append(secondaries, server)
		}
	}

	for _, server := range append([]Target{primary}, secondaries...) {
		if _, err := etcd.manager.run(ctx, PhaseEtcdRestore, server, k3s.StopCommand()); err != nil {
			return err
		}
	}

	if _, err := etcd.manager.run(ctx, PhaseEtcdRestore, primary, k3s.ClusterResetCommand(file)); err != nil {
		return err
	}

	for _, server := range secondaries {
		if _, err := etcd.manager.run(ctx, PhaseEtcdRestore, server, k3s.RejoinCommand()); err != nil {
			return err
		}
	}
	return nil
}

func (etcd *EtcdManager) k3s() K3sConfig {
	return etcd.manager.options.K3s
}

func validateSnapshotName(name string) error {
	if !snapshotNamePattern.MatchString(name) {
		return &ValidationError{"snapshot", fmt.Sprintf("%q is not a valid snapshot name", name)}
	}
	return nil
}

// generateName returns a datetime string for unnamed snapshots
func generateName(t time.Time) string {
	return t.Format("2006-01-02-15-04")
}

// SnapshotSaveCommand takes an on-demand snapshot of the embedded etcd
func (config K3sConfig) SnapshotSaveCommand(name string) RemoteCommand {
	return RemoteCommand{
		EventName: "save etcd snapshot",
		Create:    config.privileged("k3s etcd-snapshot save --name " + shellQuote(name)),
	}
}

// SnapshotListCommand lists the local snapshots
func (config K3sConfig) SnapshotListCommand() RemoteCommand {
	return RemoteCommand{
		EventName: "list etcd snapshots",
		Create:    config.privileged("k3s etcd-snapshot ls"),
	}
}

// SnapshotExistsCommand fails if the snapshot file is missing
func (config K3sConfig) SnapshotExistsCommand(file string) RemoteCommand {
	return RemoteCommand{
		EventName: "check etcd snapshot",
		Create:    config.privileged("test -f " + shellQuote(path.Join(snapshotDirPath, file))),
	}
}

// StopCommand stops the k3s server service
func (config K3sConfig) StopCommand() RemoteCommand {
	return RemoteCommand{
		EventName: "stop k3s",
		Create:    config.privileged("systemctl stop k3s"),
	}
}

// ClusterResetCommand restores the primary's datastore from a snapshot file and starts it again
func (config K3sConfig) ClusterResetCommand(file string) RemoteCommand {
	restore := fmt.Sprintf("k3s server --cluster-reset --cluster-reset-restore-path=%s", shellQuote(path.Join(snapshotDirPath, file)))
	return RemoteCommand{
		EventName: "restore etcd snapshot",
		Create:    config.privileged(restore) + " && " + config.privileged("systemctl start k3s"),
	}
}

// RejoinCommand drops the datastore of a secondary server so it rejoins the reset cluster
func (config K3sConfig) RejoinCommand() RemoteCommand {
	return RemoteCommand{
		EventName: "rejoin server",
		Create:    config.privileged("rm -rf "+serverDBPath) + " && " + config.privileged("systemctl start k3s"),
	}
}
