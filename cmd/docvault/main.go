package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var r reported
		if !errors.As(err, &r) {
			printError("%v", err)
		}
		os.Exit(1)
	}
}
