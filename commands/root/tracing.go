// Copyright © 2017 The virtual-kubelet authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package root

import (
	"context"

	"github.com/pkg/errors"
	"github.com/roverlink/teleop/common/log"
	"github.com/virtual-kubelet/virtual-kubelet/trace"
	"github.com/virtual-kubelet/virtual-kubelet/trace/opentelemetry"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTracing installs an OpenTelemetry tracer provider behind the
// virtual-kubelet trace facade. Finished spans are written to the debug log.
// The returned func flushes and stops the provider.
func setupTracing(ctx context.Context, c Opts) (func(context.Context) error, error) {
	if !c.EnableTracing {
		return func(context.Context) error { return nil }, nil
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return nil, errors.Errorf("trace sample rate %v is not within [0, 1]", c.TraceSampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.TraceSampleRate))),
		sdktrace.WithSyncer(&logExporter{logger: log.G(ctx)}),
	)
	otel.SetTracerProvider(provider)
	trace.T = opentelemetry.Adapter{}

	log.G(ctx).WithField("sampleRate", c.TraceSampleRate).Info("Tracing enabled")
	return provider.Shutdown, nil
}

type logExporter struct {
	logger log.Logger
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		e.logger.WithFields(log.Fields{
			"span":     s.Name(),
			"traceID":  s.SpanContext().TraceID().String(),
			"spanID":   s.SpanContext().SpanID().String(),
			"parentID": s.Parent().SpanID().String(),
			"duration": s.EndTime().Sub(s.StartTime()).String(),
			"status":   s.Status().Code.String(),
		}).Debug("Span finished")
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error {
	return nil
}
