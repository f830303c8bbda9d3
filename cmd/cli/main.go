package main

import (
	"github.com/agentflow-dev/toolsets/cmd"
)

func main() {
	cmd.Execute()
}
