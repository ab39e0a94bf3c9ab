package main

import (
	"github.com/neo/arbiter_backend/cmd"
)

func main() {
	cmd.Execute()
}
