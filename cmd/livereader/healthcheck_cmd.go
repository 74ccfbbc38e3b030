// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

// runHealthcheckCLI probes the status server of a running session.
func runHealthcheckCLI(args []string) int {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	mode := fs.String("mode", "ready", "healthcheck mode: ready (default) or live")
	addr := fs.String("addr", "localhost:8088", "status server address")
	timeout := fs.Duration("timeout", 5*time.Second, "check timeout")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	path := "/healthz"
	if *mode == "ready" {
		path = "/readyz"
	}

	client := http.Client{Timeout: *timeout}
	resp, err := client.Get(fmt.Sprintf("http://%s%s", *addr, path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Healthcheck failed (network): %v\n", err)
		return exitFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Healthcheck failed (status): %s\n", resp.Status)
		return exitFailed
	}

	fmt.Printf("Healthcheck successful (%s)\n", *mode)
	return exitOK
}
