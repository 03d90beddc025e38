package main

import "github.com/deploymenttheory/go-bootstd/cmd"

func main() {
	cmd.Execute()
}
