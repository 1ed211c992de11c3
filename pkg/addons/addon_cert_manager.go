package addons

const certManagerVersion = "v1.14.4"

// NewCertManagerAddon creates the cert-manager add-on
func NewCertManagerAddon(env Environment) ClusterAddon {
	return &ManifestAddon{
		env:         env,
		name:        "cert-manager",
		description: "Auto-TLS provisioning & management",
		url:         "https://cert-manager.io",
		namespace:   "cert-manager",
		manifests: []string{
			"https://github.com/cert-manager/cert-manager/releases/download/" + certManagerVersion + "/cert-manager.yaml",
		},
		deployments: []string{"cert-manager", "cert-manager-cainjector", "cert-manager-webhook"},
	}
}

func init() {
	addAddon("cert-manager", NewCertManagerAddon)
}
