package main

import (
	"github.com/luma/vici/cmd"
)

func main() {
	cmd.Execute()
}
