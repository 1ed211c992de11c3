package addons

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// PhaseAddon labels add-on operations in the retry history
const PhaseAddon = "addon"

// ClusterAddon is an optional component deployed into a bootstrapped cluster
type ClusterAddon interface {
	Name() string
	Requires() []string
	Description() string
	URL() string
	Install(ctx context.Context) error
	Uninstall(ctx context.Context) error
}

// RolloutMonitor waits for a deployment to become available
type RolloutMonitor interface {
	WaitForRollout(ctx context.Context, namespace, name string) error
}

// Environment is what add-ons need to reach the cluster
type Environment struct {
	Manager *clustermanager.Manager
	Primary clustermanager.Target
	// Monitor is optional; without one, installs return once the manifests are applied
	Monitor RolloutMonitor
}

type addonConstructor func(env Environment) ClusterAddon

var addonConstructors = map[string]addonConstructor{}

func addAddon(name string, constructor addonConstructor) {
	addonConstructors[name] = constructor
}

// ClusterAddonService resolves add-ons by name
type ClusterAddonService struct {
	env Environment
}

// NewClusterAddonService creates a ClusterAddonService
func NewClusterAddonService(env Environment) *ClusterAddonService {
	return &ClusterAddonService{env: env}
}

// AddonExists returns true if an add-on of that name is known
func (ClusterAddonService) AddonExists(addonName string) bool {
	_, ok := addonConstructors[addonName]
	return ok
}

// GetAddon returns the add-on of that name, or nil
func (addonService ClusterAddonService) GetAddon(addonName string) ClusterAddon {
	constructor, ok := addonConstructors[addonName]
	if !ok {
		return nil
	}
	return constructor(addonService.env)
}

// Addons returns all known add-ons sorted by name
func (addonService ClusterAddonService) Addons() []ClusterAddon {
	names := make([]string, 0, len(addonConstructors))
	for name := range addonConstructors {
		names = append(names, name)
	}
	sort.Strings(names)

	addons := make([]ClusterAddon, len(names))
	for i, name := range names {
		addons[i] = addonConstructors[name](addonService.env)
	}
	return addons
}

// Install installs the add-on after the add-ons it requires. Each add-on is
// installed once per call; a cycle in the requirements is an error.
func (addonService ClusterAddonService) Install(ctx context.Context, addonName string) error {
	resolver := &installResolver{
		service:    addonService,
		installing: map[string]bool{},
		installed:  map[string]bool{},
	}
	return resolver.install(ctx, addonName)
}

type installResolver struct {
	service    ClusterAddonService
	installing map[string]bool
	installed  map[string]bool
}

func (resolver *installResolver) install(ctx context.Context, addonName string) error {
	if resolver.installed[addonName] {
		return nil
	}
	if resolver.installing[addonName] {
		return errors.Errorf("add-on %s requires itself", addonName)
	}
	resolver.installing[addonName] = true
	defer delete(resolver.installing, addonName)

	addon := resolver.service.GetAddon(addonName)
	if addon == nil {
		return errors.Errorf("add-on %s not found", addonName)
	}
	for _, required := range addon.Requires() {
		if err := resolver.install(ctx, required); err != nil {
			return errors.Wrapf(err, "install %s required by %s", required, addonName)
		}
	}
	if err := addon.Install(ctx); err != nil {
		return err
	}
	resolver.installed[addonName] = true
	return nil
}
