package main

import (
	"fmt"

	"github.com/tangrc99/Gossip/cli"
)

func main() {
	if err := cli.Start(); err != nil {
		fmt.Println(err)
	}
}
