package addons

const ingressNginxVersion = "controller-v1.10.0"

// NewIngressAddon creates the ingress-nginx add-on. The bare-metal flavour
// exposes the controller on node ports since k3s clusters have no cloud load balancer.
func NewIngressAddon(env Environment) ClusterAddon {
	return &ManifestAddon{
		env:         env,
		name:        "ingress-nginx",
		description: "an ingress based load balancer for K8S",
		url:         "https://kubernetes.github.io/ingress-nginx/",
		namespace:   "ingress-nginx",
		manifests: []string{
			"https://raw.githubusercontent.com/kubernetes/ingress-nginx/" + ingressNginxVersion + "/deploy/static/provider/baremetal/deploy.yaml",
		},
		deployments: []string{"ingress-nginx-controller"},
	}
}

func init() {
	addAddon("ingress-nginx", NewIngressAddon)
}
