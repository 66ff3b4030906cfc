package main

import "fleetmaster/client/fleet-cli/cmd"

func main() {
	cmd.Execute()
}
