package addons

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ManifestAddon applies upstream manifests with the kubectl of the primary
// and waits for its deployments to roll out
type ManifestAddon struct {
	env Environment

	name        string
	description string
	url         string
	requires    []string
	// namespace holds the deployments and is removed on uninstall
	namespace string
	// ownNamespace is set for manifests without a Namespace object; the namespace
	// is created first and the manifests are applied into it
	ownNamespace bool
	manifests    []string
	deployments  []string
}

// Name returns the addons' name
func (addon *ManifestAddon) Name() string {
	return addon.name
}

// Requires returns the addons' requirements
func (addon *ManifestAddon) Requires() []string {
	return addon.requires
}

// Description returns the addons' description
func (addon *ManifestAddon) Description() string {
	return addon.description
}

// URL returns the addons' project URL
func (addon *ManifestAddon) URL() string {
	return addon.url
}

// Manifests returns the manifest URLs in apply order
func (addon *ManifestAddon) Manifests() []string {
	return addon.manifests
}

// Install applies the manifests and waits for the rollout
func (addon *ManifestAddon) Install(ctx context.Context) error {
	if addon.ownNamespace {
		if err := addon.ensureNamespace(ctx); err != nil {
			return err
		}
	}

	for _, manifest := range addon.manifests {
		args := []string{"apply", "-f", manifest}
		if addon.ownNamespace {
			args = append(args, "-n", addon.namespace)
		}
		if _, err := addon.kubectl(ctx, "apply "+manifest, args...); err != nil {
			return errors.Wrapf(err, "unable to install %s", addon.name)
		}
	}

	if addon.env.Monitor == nil {
		return nil
	}
	for _, deployment := range addon.deployments {
		if err := addon.env.Monitor.WaitForRollout(ctx, addon.namespace, deployment); err != nil {
			return errors.Wrapf(err, "%s did not roll out", addon.name)
		}
	}
	return nil
}

// Uninstall deletes the manifests in reverse order, then the namespace
func (addon *ManifestAddon) Uninstall(ctx context.Context) error {
	for i := len(addon.manifests) - 1; i >= 0; i-- {
		manifest := addon.manifests[i]
		args := []string{"delete", "-f", manifest, "--ignore-not-found"}
		if addon.ownNamespace {
			args = append(args, "-n", addon.namespace)
		}
		if _, err := addon.kubectl(ctx, "delete "+manifest, args...); err != nil {
			return errors.Wrapf(err, "unable to uninstall %s", addon.name)
		}
	}

	if addon.namespace == "" {
		return nil
	}
	_, err := addon.kubectl(ctx, "delete namespace "+addon.namespace, "delete", "namespace", addon.namespace, "--ignore-not-found")
	return err
}

func (addon *ManifestAddon) ensureNamespace(ctx context.Context) error {
	_, err := addon.kubectl(ctx, "get namespace "+addon.namespace, "get", "namespace", addon.namespace)
	if err == nil {
		return nil
	}
	_, err = addon.kubectl(ctx, "create namespace "+addon.namespace, "create", "namespace", addon.namespace)
	return err
}

func (addon *ManifestAddon) kubectl(ctx context.Context, eventName string, args ...string) (string, error) {
	if addon.env.Manager == nil {
		return "", errors.New("no cluster manager configured")
	}
	out, err := addon.env.Manager.Kubectl(ctx, fmt.Sprintf("%s/%s", PhaseAddon, addon.name), addon.env.Primary, eventName, args...)
	return out.Reveal(), err
}
