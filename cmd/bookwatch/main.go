// bookwatch rebuilds a documentation book whenever its sources change.
package main

import (
	"os"

	"github.com/hupe1980/bookwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
