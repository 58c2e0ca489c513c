package main

import (
	"os"

	"github.com/pacquet/pacquet/internal/cmd"
)

var pacquetVersion = "0.0.0-dev"

func main() {
	os.Exit(cmd.RunWithArgs(os.Args[1:], pacquetVersion))
}
