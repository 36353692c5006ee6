package main

import "github.com/nextlevelbuilder/httpbridge/cmd"

func main() {
	cmd.Execute()
}
