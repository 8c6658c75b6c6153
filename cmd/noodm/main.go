// Command noodm manages noodm databases from the shell.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newCLI(os.Stdout, os.Stderr).execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
