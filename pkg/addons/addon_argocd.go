package addons

// NewArgoCDAddon creates the ArgoCD add-on
func NewArgoCDAddon(env Environment) ClusterAddon {
	return &ManifestAddon{
		env:          env,
		name:         "argocd",
		description:  "ArgoCD integration",
		url:          "https://argoproj.github.io/argo-cd/",
		namespace:    "argocd",
		ownNamespace: true,
		manifests: []string{
			"https://raw.githubusercontent.com/argoproj/argo-cd/stable/manifests/install.yaml",
		},
		deployments: []string{"argocd-server", "argocd-repo-server"},
	}
}

// adding the addon to the global list
func init() {
	addAddon("argocd", NewArgoCDAddon)
}
