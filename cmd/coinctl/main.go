// Command coinctl operates a coin ledger from the command line.
package main

import (
	"context"
	"os"
)

func main() {
	root, a := newRootCmd()
	err := root.Execute()
	if cerr := a.close(context.Background()); err == nil {
		err = cerr
	}
	if err != nil {
		os.Exit(1)
	}
}
