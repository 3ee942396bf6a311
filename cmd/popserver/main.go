package main

import "github.com/popfoundry/popserver/cmd/popserver/cmd"

func main() {
	cmd.Execute()
}
