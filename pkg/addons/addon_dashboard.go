package addons

// NewDashboardAddon creates the Kubernetes dashboard add-on
func NewDashboardAddon(env Environment) ClusterAddon {
	return &ManifestAddon{
		env:         env,
		name:        "dashboard",
		description: "Kubernetes Dashboard",
		url:         "https://github.com/kubernetes/dashboard",
		namespace:   "kubernetes-dashboard",
		manifests: []string{
			"https://raw.githubusercontent.com/kubernetes/dashboard/v2.7.0/aio/deploy/recommended.yaml",
		},
		deployments: []string{"kubernetes-dashboard", "dashboard-metrics-scraper"},
	}
}

func init() {
	addAddon("dashboard", NewDashboardAddon)
}
