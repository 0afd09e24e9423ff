// Package main prints a random signing secret for PHUB_JWT_SECRET. Use it to
// seed local and staging environments; production secrets belong in the
// deployment's secret store.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
)

func main() {
	size := flag.Int("bytes", 48, "number of random bytes before encoding")
	flag.Parse()

	if *size < 32 {
		log.Fatalf("-bytes must be at least 32, got %d", *size)
	}

	raw := make([]byte, *size)
	if _, err := rand.Read(raw); err != nil {
		log.Fatal(err)
	}

	secret := base64.RawURLEncoding.EncodeToString(raw)

	fmt.Println("=== Generated JWT Secret ===")
	fmt.Printf("Length: %d characters\n\n", len(secret))
	fmt.Printf("export PHUB_JWT_SECRET=%s\n", secret)
}
