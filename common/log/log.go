// Package log carries a logrus-backed logger through contexts using the
// virtual-kubelet log facade.
package log

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	vklog "github.com/virtual-kubelet/virtual-kubelet/log"
	logruslogger "github.com/virtual-kubelet/virtual-kubelet/log/logrus"
)

type (
	Logger = vklog.Logger
	Fields = vklog.Fields
)

// G returns the logger stored in ctx, or the process default.
func G(ctx context.Context) Logger {
	return vklog.G(ctx)
}

// WithLogger returns a child context carrying logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return vklog.WithLogger(ctx, logger)
}

// Init installs a logrus logger at the given level as the process default.
func Init(level string, out io.Writer) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", level)
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if out != nil {
		logger.SetOutput(out)
	}

	vklog.L = logruslogger.FromLogrus(logrus.NewEntry(logger))
	return nil
}
