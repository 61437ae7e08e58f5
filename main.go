package main

import "github.com/lexware/chatsync/cmd"

func main() {
	cmd.Execute()
}
