// Command wa-flows-keygen generates the RSA-2048 key pair for the
// encrypted Flow exchange. The private key stays with the service; the
// public key is uploaded to the WhatsApp Business account.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"os"
)

func main() {
	out := "flow_private_key.pem"
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "help", "--help", "-h":
			fmt.Fprintln(os.Stderr, "usage: wa-flows-keygen [output-file]")
			os.Exit(0)
		default:
			out = os.Args[1]
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(out, privPEM, 0o600); err != nil {
		log.Fatalf("write %s: %v", out, err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		log.Fatalf("encode public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	fmt.Printf("private key written to %s\n\n", out)
	fmt.Println("upload this public key to the WhatsApp Business account:")
	fmt.Print(string(pubPEM))
}
