package main

import (
	"os"

	"github.com/user/phpcov/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
