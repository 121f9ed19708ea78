// Command countwords is the sample Drover job: it counts the words in its
// input file and writes the count to countwords_output.txt, honoring the
// cluster's "<executable>_output.txt" output convention.
//
// Usage: ./countwords <input-file>
package main

import (
	"fmt"
	"os"
	"strings"
)

const outputFileName = "countwords_output.txt"

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: countwords <input-file>")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "countwords: %v\n", err)
		os.Exit(1)
	}

	count := len(strings.Fields(string(data)))

	if err := os.WriteFile(outputFileName, []byte(fmt.Sprintf("%d", count)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "countwords: %v\n", err)
		os.Exit(1)
	}
}
