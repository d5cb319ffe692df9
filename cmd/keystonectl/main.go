package main

import "github.com/keystone-admin/keystone/cmd/keystonectl/cmd"

func main() {
	cmd.Execute()
}
