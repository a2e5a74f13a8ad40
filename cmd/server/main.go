package main

// cmd/server/main.go boots the HTTP/gRPC service directly, without the
// veritas CLI wrapper. Useful for container images where the only thing
// the binary should do is serve.
//
// For migrations, seeding, key management and ledger inspection use the
// full CLI at cmd/veritas.

import (
	"log"

	"github.com/shashiranjanraj/veritas/internal/server"

	_ "github.com/shashiranjanraj/veritas/database/migrations"
	_ "github.com/shashiranjanraj/veritas/database/seeders"
)

func main() {
	if err := server.Start(); err != nil {
		log.Fatal(err)
	}
}
