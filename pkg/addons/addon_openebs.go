package addons

// NewOpenEBSAddon creates the OpenEBS local PV add-on
func NewOpenEBSAddon(env Environment) ClusterAddon {
	return &ManifestAddon{
		env:         env,
		name:        "openebs",
		description: "Simple scalable block storage provider",
		url:         "https://openebs.io/",
		namespace:   "openebs",
		manifests: []string{
			"https://openebs.github.io/charts/openebs-operator-lite.yaml",
			"https://openebs.github.io/charts/openebs-lite-sc.yaml",
		},
		deployments: []string{"openebs-localpv-provisioner"},
	}
}

func init() {
	addAddon("openebs", NewOpenEBSAddon)
}
