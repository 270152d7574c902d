// Command pcforge is a terminal client for the storefront. It keeps a guest
// cart in a local SQLite file and merges it into the account cart after
// login.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
