package main

import "adminpanel/api/cmd/adminctl/cmd"

func main() {
	cmd.Execute()
}
