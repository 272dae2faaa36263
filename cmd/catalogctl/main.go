package main

import (
	"context"
	"fmt"
	"os"

	"peakfit/workout-catalog/internal/cli"
)

func main() {
	code, err := cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(code)
}
