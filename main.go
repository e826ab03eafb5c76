// The main package for the shelfsync executable.
package main

import (
	"shelfsync/cmd"
)

func main() {
	cmd.Execute()
}
