package main

import "github.com/xetys/kubefleet/cmd"

func main() {
	cmd.Execute()
}
