package main

import (
	"fmt"
	"os"

	"github.com/iambrandonn/pairagent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pairagent: %v\n", err)
		os.Exit(1)
	}
}
