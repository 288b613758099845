package main

import (
	"os"

	cmd "github.com/MrSnakeDoc/warden/internal"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
