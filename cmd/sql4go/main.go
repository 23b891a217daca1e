// Command sql4go compiles SQL SELECT statements into search requests and
// executes them against Elasticsearch or a local SQLite document store.
package main

import (
	"os"

	"github.com/roach88/sql4go/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
