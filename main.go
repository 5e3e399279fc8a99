// main.go
//
// Entry point; all CLI handling lives in the Cobra commands under cmd/

package main

import (
	"github.com/joinrace/joinrace/cmd"
)

func main() {
	cmd.Execute()
}
