package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/component-base/cli"

	"github.com/mytestlab123/pipeline/cmd/pipemirror/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := app.NewPipemirrorCommand(ctx)
	code := cli.Run(cmd)
	os.Exit(code)
}
