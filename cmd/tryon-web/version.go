package main

// Build-time version identity, injected via -ldflags:
//
//	go build -ldflags="-X main.commitHash=$(git rev-parse --short HEAD) -X main.buildTime=$(date -u +%Y%m%dT%H%M%SZ)" ./cmd/tryon-web
//
// With go run the defaults are used.
var (
	commitHash = "dev"
	buildTime  = "unknown"
)
