package main

import (
	"os"

	"github.com/ppiankov/supaspectre/internal/cli"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cli.SetVersion(version)
	os.Exit(cli.Execute())
}
