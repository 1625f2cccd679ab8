package main

import (
	"fmt"
	"net"
	"strings"
)

// listenerURL renders the configured listen address as a reachable URL for
// the startup log, so operators can paste it straight into a client.
func listenerURL(address string) string {
	return fmt.Sprintf("http://%s", normaliseHostPort(address))
}

func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		//1.- A bare ":port" still deserves a clickable host.
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	host = strings.TrimSpace(host)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
