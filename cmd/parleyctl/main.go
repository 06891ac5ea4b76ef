// Command parleyctl is a terminal client for a running parley server.
package main

import "github.com/parleylabs/parley/internal/cli"

func main() {
	cli.Execute()
}
