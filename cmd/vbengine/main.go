// Command vbengine inspects and maintains a vbmongoengine deployment.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbouzoukos/vbmongoengine/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewCommand(cli.CommandOptions{
		Name:        "vbengine",
		Description: "MongoDB data access engine with auto-increment identities and transactions",
		ConfigPath:  os.Getenv("VBENGINE_CONFIG_FILE"),
	})
	cmd.SetContext(ctx)
	cli.Execute(cmd)
}
