package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// rootCtx/rootCancel mirror the teacher's cmd/bd/main.go signal-aware
// context: a SIGINT/SIGTERM cancels every in-flight phase instead of
// killing the process mid-write.
var (
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := newRootCmd().ExecuteContext(rootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}
