// Package main prints fresh WEBPAY_KEY and WEBPAY_SECRET values.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/louisbranch/webpay/internal/tools/secretkey"
)

func main() {
	cfg, err := secretkey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if err := secretkey.Run(cfg, os.Stdout, nil); err != nil {
		log.Fatalf("generate credentials: %v", err)
	}
}
