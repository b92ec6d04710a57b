package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roverlink/teleop/commands/root"
	"github.com/roverlink/teleop/common/log"
)

var (
	buildVersion = "N/A"
	buildTime    = "N/A"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var opts root.Opts
	if err := root.SetDefaultOpts(&opts); err != nil {
		log.G(ctx).WithError(err).Fatal("failed to set default options")
	}
	opts.Version = buildVersion

	log.G(ctx).WithField("buildTime", buildTime).Debug("Starting teleopd")
	if err := root.NewCommand(ctx, opts).Execute(); err != nil {
		log.G(ctx).WithError(err).Fatal("teleopd stopped")
	}
}
