package main

import (
	"fmt"
	"os"
)

func main() {
	a := &app{}
	err := newRootCommand(a).Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
