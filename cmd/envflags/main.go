// Command envflags selects an environment from an environment document and
// reconciles the feature symbols it implies into a define file.
//
//	envflags list
//	envflags select Prod
//	envflags apply --set log_level=debug
//	envflags watch
//	envflags explain Dev log_level
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "envflags: %v\n", err)
		stop()
		os.Exit(1)
	}
}
