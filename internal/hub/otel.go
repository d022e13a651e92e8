package hub

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/threepy/vizserver/internal/hub"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func typeAttr(msgType string) metric.AddOption {
	return metric.WithAttributes(attribute.String("type", msgType))
}

type metrics struct {
	active metric.Int64ObservableGauge
	opened metric.Int64Counter
	closed metric.Int64Counter
	sent   metric.Int64Counter
	failed metric.Int64Counter
}

func newMetrics(m *Manager) (*metrics, error) {
	mt := meter()
	out := &metrics{}

	var err error

	out.active, err = mt.Int64ObservableGauge(
		"hub.connections.active",
		metric.WithDescription("Current number of open viewer connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active gauge: %w", err)
	}

	_, err = mt.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(out.active, int64(m.Count()))
			return nil
		},
		out.active,
	)
	if err != nil {
		return nil, fmt.Errorf("registering active callback: %w", err)
	}

	out.opened, err = mt.Int64Counter(
		"hub.connections.opened",
		metric.WithDescription("Total viewer connections accepted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating opened counter: %w", err)
	}

	out.closed, err = mt.Int64Counter(
		"hub.connections.closed",
		metric.WithDescription("Total viewer connections closed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating closed counter: %w", err)
	}

	out.sent, err = mt.Int64Counter(
		"hub.messages.sent",
		metric.WithDescription("Total frames written to viewer sockets"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}

	out.failed, err = mt.Int64Counter(
		"hub.messages.failed",
		metric.WithDescription("Total sends that closed a viewer connection"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return out, nil
}
