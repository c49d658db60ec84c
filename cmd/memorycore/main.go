package main

import (
	"context"
	"os"

	"github.com/carebridge/memorycore/cmd/memorycore/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cmd.New().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
