// Command notectl administers a bilinote database: schema migration, YAML
// seeding, localStorage imports and a folder tree view.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"bilinote/internal/config"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	app := newCLIApp(cfg)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
