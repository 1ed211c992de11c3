package clustermanager

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/xetys/kubefleet/pkg/retry"
)

const (
	// DefaultIDBlockSize is the number of numeric ids reserved per role
	DefaultIDBlockSize = 10
	// DefaultClusterName is the name prefix used when none is configured
	DefaultClusterName = "cluster"
)

// SizingConfig is the input of Allocate
type SizingConfig struct {
	ClusterName           string          `json:"cluster_name" yaml:"clusterName" mapstructure:"cluster_name"`
	ControlPlaneCount     int             `json:"control_plane_count" yaml:"controlPlaneCount" mapstructure:"control_plane_count"`
	WorkerCount           int             `json:"worker_count" yaml:"workerCount" mapstructure:"worker_count"`
	ControlPlaneIDBase    int             `json:"control_plane_id_base" yaml:"controlPlaneIDBase" mapstructure:"control_plane_id_base"`
	WorkerIDBase          int             `json:"worker_id_base" yaml:"workerIDBase" mapstructure:"worker_id_base"`
	IDBlockSize           int             `json:"id_block_size" yaml:"idBlockSize" mapstructure:"id_block_size"`
	IPv4Prefix            string          `json:"ipv4_prefix" yaml:"ipv4Prefix" mapstructure:"ipv4_prefix"`
	IPv6Prefix            string          `json:"ipv6_prefix,omitempty" yaml:"ipv6Prefix,omitempty" mapstructure:"ipv6_prefix"`
	HostIndexBase         int             `json:"host_index_base" yaml:"hostIndexBase" mapstructure:"host_index_base"`
	ControlPlaneResources ResourceProfile `json:"control_plane_resources" yaml:"controlPlaneResources" mapstructure:"control_plane_resources"`
	WorkerResources       ResourceProfile `json:"worker_resources" yaml:"workerResources" mapstructure:"worker_resources"`
}

// ValidationError is returned for a sizing config that cannot be allocated
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sizing config: %s %s", e.Field, e.Reason)
}

// Category implements retry.Categorized
func (e *ValidationError) Category() retry.Category {
	return retry.CategoryValidation
}

func (config SizingConfig) name() string {
	if config.ClusterName == "" {
		return DefaultClusterName
	}
	return config.ClusterName
}

func (config SizingConfig) blockSize() int {
	if config.IDBlockSize == 0 {
		return DefaultIDBlockSize
	}
	return config.IDBlockSize
}

// Validate checks the config without allocating
func (config SizingConfig) Validate() error {
	block := config.blockSize()

	switch {
	case config.ControlPlaneCount < 1:
		return &ValidationError{"control_plane_count", fmt.Sprintf("must be at least 1, got %d", config.ControlPlaneCount)}
	case config.WorkerCount < 0:
		return &ValidationError{"worker_count", fmt.Sprintf("must not be negative, got %d", config.WorkerCount)}
	case block < 1:
		return &ValidationError{"id_block_size", fmt.Sprintf("must be positive, got %d", block)}
	case config.ControlPlaneCount > block:
		return &ValidationError{"control_plane_count", fmt.Sprintf("%d exceeds the id block of %d", config.ControlPlaneCount, block)}
	case config.WorkerCount > block:
		return &ValidationError{"worker_count", fmt.Sprintf("%d exceeds the id block of %d", config.WorkerCount, block)}
	case config.ControlPlaneIDBase < 0 || config.WorkerIDBase < 0:
		return &ValidationError{"id_base", "must not be negative"}
	case config.HostIndexBase < 0:
		return &ValidationError{"host_index_base", fmt.Sprintf("must not be negative, got %d", config.HostIndexBase)}
	case config.IPv4Prefix == "":
		return &ValidationError{"ipv4_prefix", "must be set"}
	case !isSlug(config.name()):
		return &ValidationError{"cluster_name", fmt.Sprintf("%q must be a lowercase slug", config.name())}
	}

	// blocks [base, base+block) of both roles must not overlap
	cpStart, cpEnd := config.ControlPlaneIDBase, config.ControlPlaneIDBase+block
	wStart, wEnd := config.WorkerIDBase, config.WorkerIDBase+block
	if cpStart < wEnd && wStart < cpEnd {
		return &ValidationError{"id_base", fmt.Sprintf("control-plane block [%d,%d) overlaps worker block [%d,%d)", cpStart, cpEnd, wStart, wEnd)}
	}

	lastHost := config.HostIndexBase + config.ControlPlaneCount + config.WorkerCount - 1
	if _, err := ipv4Address(config.IPv4Prefix, lastHost); err != nil {
		return err
	}
	if _, err := ipv4Address(config.IPv4Prefix, config.HostIndexBase); err != nil {
		return err
	}
	if config.IPv6Prefix != "" {
		if _, err := ipv6Address(config.IPv6Prefix, lastHost); err != nil {
			return err
		}
	}

	return nil
}

// Allocate derives the node descriptors of a cluster. Control-plane nodes come
// first; the same config always yields the same nodes.
func Allocate(config SizingConfig) ([]Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, config.ControlPlaneCount+config.WorkerCount)
	for i := 0; i < config.ControlPlaneCount; i++ {
		node, err := config.node(RoleControlPlane, i, i)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	for i := 0; i < config.WorkerCount; i++ {
		node, err := config.node(RoleWorker, i, config.ControlPlaneCount+i)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

func (config SizingConfig) node(role Role, roleIndex, globalIndex int) (Node, error) {
	hostIndex := config.HostIndexBase + globalIndex

	ipv4, err := ipv4Address(config.IPv4Prefix, hostIndex)
	if err != nil {
		return Node{}, err
	}

	var ipv6 string
	if config.IPv6Prefix != "" {
		ipv6, err = ipv6Address(config.IPv6Prefix, hostIndex)
		if err != nil {
			return Node{}, err
		}
	}

	node := Node{
		Role:        role,
		RoleIndex:   roleIndex,
		GlobalIndex: globalIndex,
		IPv4:        ipv4,
		IPv6:        ipv6,
	}

	switch role {
	case RoleControlPlane:
		node.ID = config.ControlPlaneIDBase + roleIndex
		node.Name = ControlPlaneName(config.name(), roleIndex)
		node.Resources = config.ControlPlaneResources
	default:
		node.ID = config.WorkerIDBase + roleIndex
		node.Name = WorkerName(config.name(), roleIndex)
		node.Resources = config.WorkerResources
	}

	return node, nil
}

// ControlPlaneName returns the name of a control-plane node. The first one is unqualified.
func ControlPlaneName(cluster string, roleIndex int) string {
	if roleIndex == 0 {
		return fmt.Sprintf("%s-master", cluster)
	}
	return fmt.Sprintf("%s-master-%d", cluster, roleIndex+1)
}

// WorkerName returns the name of a worker node
func WorkerName(cluster string, roleIndex int) string {
	return fmt.Sprintf("%s-worker-%d", cluster, roleIndex+1)
}

func ipv4Address(prefix string, hostIndex int) (string, error) {
	if hostIndex < 1 || hostIndex > 254 {
		return "", &ValidationError{"host_index_base", fmt.Sprintf("host index %d is outside 1..254", hostIndex)}
	}
	address := prefix + strconv.Itoa(hostIndex)
	ip := net.ParseIP(address)
	if ip == nil || ip.To4() == nil {
		return "", &ValidationError{"ipv4_prefix", fmt.Sprintf("%q does not produce an IPv4 address (%s)", prefix, address)}
	}
	return address, nil
}

func ipv6Address(prefix string, hostIndex int) (string, error) {
	address := prefix + strconv.Itoa(hostIndex)
	ip := net.ParseIP(address)
	if ip == nil || ip.To4() != nil {
		return "", &ValidationError{"ipv6_prefix", fmt.Sprintf("%q does not produce an IPv6 address (%s)", prefix, address)}
	}
	return address, nil
}

func isSlug(s string) bool {
	if s == "" || strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}
