// Command authcore-keygen prints a fresh base64-encoded 32-byte master key
// for envelope encryption of signing keys. Store the output in your secret
// manager and pass it to the engine via AUTHCORE_MASTER_KEY.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/nextrealm/authcore/envelope"
)

func main() {
	key := make([]byte, envelope.KeySize)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintln(os.Stderr, "key generation failed:", err)
		os.Exit(1)
	}
	fmt.Println(base64.StdEncoding.EncodeToString(key))
}
