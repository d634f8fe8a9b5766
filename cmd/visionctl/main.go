package main

import (
	"os"

	"github.com/DRSN-tech/vision-service/cmd/visionctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
