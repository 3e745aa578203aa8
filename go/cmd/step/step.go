package step

import (
	"os"

	"github.com/stepcorn/stepcorn/go/cmd"
)

func Main(args []string) {
	os.Exit(cmd.NewStepcornCmd().Run(args))
}

func init() { cmd.Register("step", "single-step a function", Main) }
