// Command mudra trains a rock/paper/scissors classifier on camera examples
// and plays against it.
package main

import (
	"fmt"
	"os"

	"github.com/gonuts/commander"
)

var root = &commander.Command{
	UsageLine: "mudra <command> [options]",
	Short:     "on-device rock, paper, scissors",
}

func init() {
	root.Subcommands = []*commander.Command{
		serveCmd(),
		playCmd(),
		historyCmd(),
	}
}

func main() {
	if err := root.Dispatch(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "mudra: %v\n", err)
		os.Exit(1)
	}
}
