package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders("api-key=abc, tenant = epochstake ,broken,=novalue,")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "epochstake"}, headers)
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "epochstaked", Traces: true})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	shutdown, err = Init(context.Background(), Config{Endpoint: "localhost:4318"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestResourceDescribesLedger(t *testing.T) {
	res, err := newResource(Config{ServiceVersion: "1.2.0", Environment: "test", Asset: "GM"})
	require.NoError(t, err)
	set := res.Set()

	name, ok := set.Value(attribute.Key("service.name"))
	require.True(t, ok)
	require.Equal(t, DefaultServiceName, name.AsString())
	version, ok := set.Value(attribute.Key("service.version"))
	require.True(t, ok)
	require.Equal(t, "1.2.0", version.AsString())
	asset, ok := set.Value(attribute.Key("epochstake.asset"))
	require.True(t, ok)
	require.Equal(t, "GM", asset.AsString())
}

func TestExporterHeadersPreferConfig(t *testing.T) {
	t.Setenv(headersEnv, "api-key=env, tenant=env")
	headers := exporterHeaders(map[string]string{"api-key": "config"})
	require.Equal(t, map[string]string{"api-key": "config", "tenant": "env"}, headers)

	t.Setenv(headersEnv, "")
	require.Nil(t, exporterHeaders(nil))
}
