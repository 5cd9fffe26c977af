package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/profilesync/internal/cli"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
