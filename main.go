package main

import "github.com/iksnae/session-bridge/cmd"

func main() {
	cmd.Execute()
}
