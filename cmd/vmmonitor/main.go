package main

import (
	"fmt"
	"os"
)

// @title vmmonitor API
// @version 1.0
// @description Alerts, snapshots, metrics and power control for monitored cloud VMs.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
