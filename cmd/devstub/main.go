package main

import (
	"flag"
	"log"
	"os"

	"shopsync/internal/devstub"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	secret := os.Getenv("DEV_JWT_SECRET")
	if secret == "" {
		secret = "dev-secret"
	}

	server := devstub.NewServer(secret)
	server.AutoReply = true

	log.Printf("Starting storefront dev stub on %s...", *addr)
	log.Fatal(server.Start(*addr))
}
