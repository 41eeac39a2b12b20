package main

import (
	"github.com/ensoft/marple/pkg/cmd"
)

func main() {
	cmd.Execute()
}
