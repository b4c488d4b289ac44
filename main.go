// main.go
package main

import (
	"os"

	"github.com/gewnthar/sanctions/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
