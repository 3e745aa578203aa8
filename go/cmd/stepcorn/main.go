package main

import (
	"github.com/stepcorn/stepcorn/go/cmd"

	_ "github.com/stepcorn/stepcorn/go/cmd/step"
	_ "github.com/stepcorn/stepcorn/go/cmd/trace"
)

func main() { cmd.Main() }
