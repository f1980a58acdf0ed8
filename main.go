package main

import "github.com/mapsmith/mapsmith/cmd"

func main() {
	cmd.Execute()
}
