package main

import (
	"github.com/tranvictor/walletd/cmd"
)

func main() {
	cmd.Execute()
}
