package main

import "github.com/nextlevelbuilder/swarmd/cmd"

func main() {
	cmd.Execute()
}
