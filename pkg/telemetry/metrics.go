// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/seiklabs/mcpgate/pkg/errors"
)

// DispatchMetrics tracks action throughput, latency and failures for
// production monitoring of the gateway.
type DispatchMetrics struct {
	// actionCounter tracks dispatched actions by action tag and outcome
	actionCounter metric.Int64Counter

	// errorCounter tracks dispatch failures by error code
	errorCounter metric.Int64Counter

	// actionDuration tracks dispatch latency per action
	actionDuration metric.Float64Histogram

	// truncationCounter tracks resource reads that hit the size cap
	truncationCounter metric.Int64Counter
}

// NewDispatchMetrics creates a dispatch metrics tracker with OTEL meters.
func NewDispatchMetrics() (*DispatchMetrics, error) {
	meter := otel.Meter("mcpgate/dispatch")

	actionCounter, err := meter.Int64Counter(
		"mcpgate.actions.total",
		metric.WithDescription("Total dispatched actions by tag and outcome"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"mcpgate.actions.errors",
		metric.WithDescription("Dispatch failures by error code"),
	)
	if err != nil {
		return nil, err
	}

	actionDuration, err := meter.Float64Histogram(
		"mcpgate.actions.duration_ms",
		metric.WithDescription("Dispatch latency per action in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	truncationCounter, err := meter.Int64Counter(
		"mcpgate.resources.truncated",
		metric.WithDescription("Resource reads truncated by the size cap"),
	)
	if err != nil {
		return nil, err
	}

	return &DispatchMetrics{
		actionCounter:     actionCounter,
		errorCounter:      errorCounter,
		actionDuration:    actionDuration,
		truncationCounter: truncationCounter,
	}, nil
}

// RecordDispatch records one completed dispatch, successful or not.
func (dm *DispatchMetrics) RecordDispatch(ctx context.Context, action string, duration time.Duration, err error) {
	if dm == nil {
		return
	}

	success := "true"
	if err != nil {
		success = "false"
	}
	dm.actionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrAction, action),
			attribute.String(AttrActionOK, success),
		),
	)
	dm.actionDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(attribute.String(AttrAction, action)),
	)

	if err != nil {
		dm.errorCounter.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String(AttrAction, action),
				attribute.String(AttrErrorCode, string(errors.CodeOf(err))),
			),
		)
	}
}

// RecordTruncation records a resource read that exceeded the size cap.
func (dm *DispatchMetrics) RecordTruncation(ctx context.Context, uri string) {
	if dm == nil {
		return
	}
	dm.truncationCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrResourceURI, uri)),
	)
}
