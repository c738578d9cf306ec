// Command plotnik compiles and runs tree-sitter queries: check them for
// errors, execute them against source files, dump compiled bytecode,
// print inferred types, and trace execution.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
