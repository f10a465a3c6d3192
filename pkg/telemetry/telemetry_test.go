package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	tel, shutdown, err := New(Config{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, tel.Registry)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Meter)
	require.NoError(t, shutdown(context.Background()))
}

func TestNew_ExportsToRegistry(t *testing.T) {
	tel, shutdown, err := New(Config{Enabled: true, ServiceName: "edgeheap-test"})
	require.NoError(t, err)
	defer func() { require.NoError(t, shutdown(context.Background())) }()
	require.Empty(t, tel.MetricsAddr)

	counter, err := tel.Meter.Int64Counter("edgeheap.test.ops")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := tel.Registry.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "edgeheap_test_ops") {
			found = true
			require.Equal(t, 3.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.True(t, found, "counter not exported")

	_, span := tel.Tracer.Start(context.Background(), "check")
	require.True(t, span.SpanContext().IsSampled())
	span.End()
}
