// Command demotarget starts a local HTTP server for exercising the metadata
// collector: pages with headers, cookies and titles, status-code endpoints,
// redirect chains, and a slow endpoint.
// Usage: go run ./cmd/demotarget [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/dkarali/urlmeta/internal/demotarget"
)

func main() {
	cfg := demotarget.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("Demo target endpoints:")
	fmt.Println("  /            home page with headers and cookies")
	fmt.Println("  /about       page with multiple cookies")
	fmt.Println("  /products    page with custom headers")
	fmt.Println("  /status/404  permanent failure")
	fmt.Println("  /status/503  transient failure")
	fmt.Println("  /redirect/3  redirect chain of length 3")
	fmt.Println("  /slow        delayed response (default 5s, ?delay=200ms)")
	fmt.Println()

	server := demotarget.NewDemoTarget(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
