package main

import "github.com/frahmantamala/fleet-recurring/cmd"

func main() {
	cmd.Execute()
}
