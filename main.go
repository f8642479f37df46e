package main

import cmd "github.com/inference-gateway/chatledger/cmd"

func main() {
	cmd.Execute()
}
