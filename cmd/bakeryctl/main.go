// Command bakeryctl is the operator CLI for the bakery backend: it inspects
// the delivery calendar, prices baskets and loads the catalog.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
