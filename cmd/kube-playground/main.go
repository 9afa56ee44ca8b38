package main

import (
	"os"

	"github.com/ritzau/kube-playground/pkg/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !isSilent(err) {
			logging.Error("command failed", "error", err)
		}
		os.Exit(1)
	}
}
