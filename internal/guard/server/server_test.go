package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/stacklume/fetchguard/internal/common/configtypes"
	"github.com/stacklume/fetchguard/internal/common/httputil"
	"github.com/stacklume/fetchguard/internal/guard/metrics"
	"github.com/stacklume/fetchguard/internal/guard/validator"
)

type stubResolver struct {
	answers map[string][]net.IP
}

func (s *stubResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	ips, ok := s.answers[host]
	if !ok {
		return nil, fmt.Errorf("lookup %s: no such host", host)
	}
	return ips, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, _ := newTestServerWithRegistry(t)
	return s
}

func newTestServerWithRegistry(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()

	cfg := &configtypes.Config{}
	cfg.Server.Listen = ":8080"
	cfg.Server.Timeout = configtypes.Duration(5 * time.Second)

	res := &stubResolver{answers: map[string][]net.IP{
		"example.com":        {net.ParseIP("93.184.216.34")},
		"rebind.example.net": {net.ParseIP("10.0.0.5")},
	}}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("fetchguard", registry, registry, zap.NewNop())

	v, err := validator.New(configtypes.ValidatorConfig{}, res, collector.ObserveDNSLookup, zap.NewNop())
	require.NoError(t, err)

	return NewServer(cfg, v, collector, nil, zap.NewNop()), registry
}

func doRequest(t *testing.T, s *Server, method, uri string) (*fasthttp.RequestCtx, httputil.APIResponse) {
	t.Helper()

	var req fasthttp.Request
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)

	s.HandleRequest(ctx)

	var resp httputil.APIResponse
	if body := ctx.Response.Body(); len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &resp))
	}
	return ctx, resp
}

func decisionFromData(t *testing.T, data interface{}) validator.Decision {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	var dec validator.Decision
	require.NoError(t, json.Unmarshal(raw, &dec))
	return dec
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	ctx, resp := doRequest(t, s, "GET", "/health")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, resp.Success)

	ctx, resp = doRequest(t, s, "GET", "/ready")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, resp.Success)
}

func TestValidate_MissingURL(t *testing.T) {
	s := newTestServer(t)

	ctx, resp := doRequest(t, s, "GET", "/v1/validate")
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "url")
}

func TestValidate_InvalidMode(t *testing.T) {
	s := newTestServer(t)

	ctx, _ := doRequest(t, s, "GET", "/v1/validate?url=https%3A%2F%2Fexample.com&mode=turbo")
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestValidate_Safe(t *testing.T) {
	s := newTestServer(t)

	ctx, resp := doRequest(t, s, "GET", "/v1/validate?url=https%3A%2F%2Fexample.com")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, resp.Success)

	dec := decisionFromData(t, resp.Data)
	assert.True(t, dec.Safe)
	assert.Equal(t, "https://example.com/", dec.NormalizedURL)
}

func TestValidate_Blocked(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		uri    string
		reason validator.Reason
	}{
		{"metadata IP", "/v1/validate?url=http%3A%2F%2F169.254.169.254%2Flatest%2Fmeta-data%2F", validator.ReasonPrivateOrReservedIP},
		{"file scheme", "/v1/validate?url=file%3A%2F%2Fserver%2Fetc%2Fpasswd", validator.ReasonDisallowedProtocol},
		{"localhost", "/v1/validate?url=http%3A%2F%2Flocalhost%3A3000", validator.ReasonBlockedHostnamePattern},
		{"rebinding hostname", "/v1/validate?url=http%3A%2F%2Frebind.example.net%2F", validator.ReasonHostnameResolvesToPrivateIP},
		{"unresolvable", "/v1/validate?url=https%3A%2F%2Fnope.example%2F", validator.ReasonDNSResolutionFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, resp := doRequest(t, s, "GET", tt.uri)
			assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Message, "Security validation failed: ")

			dec := decisionFromData(t, resp.Data)
			assert.False(t, dec.Safe)
			assert.Equal(t, tt.reason, dec.Reason)
			assert.Empty(t, dec.NormalizedURL)
		})
	}
}

func TestValidate_SyncMode(t *testing.T) {
	s := newTestServer(t)

	// Sync mode passes the rebinding hostname: no DNS happens
	ctx, resp := doRequest(t, s, "GET", "/v1/validate?url=http%3A%2F%2Frebind.example.net%2F&mode=sync")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	dec := decisionFromData(t, resp.Data)
	assert.True(t, dec.Safe)
	assert.Equal(t, "http://rebind.example.net/", dec.NormalizedURL)

	// But still blocks everything the sync layer can see
	ctx, _ = doRequest(t, s, "GET", "/v1/validate?url=http%3A%2F%2F127.0.0.1%2F&mode=sync")
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
}

func TestValidate_PostFormMode(t *testing.T) {
	s := newTestServer(t)

	var req fasthttp.Request
	req.SetRequestURI("/v1/validate")
	req.Header.SetMethod("POST")
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBodyString("url=http%3A%2F%2Frebind.example.net%2F&mode=sync")

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)

	s.HandleRequest(ctx)

	// mode=sync arrived in the form body; if it were ignored, full mode
	// would resolve the rebinding host and answer 403
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var resp httputil.APIResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	dec := decisionFromData(t, resp.Data)
	assert.True(t, dec.Safe)
	assert.Equal(t, "http://rebind.example.net/", dec.NormalizedURL)
}

func TestValidate_DNSLookupHistogramSampled(t *testing.T) {
	s, registry := newTestServerWithRegistry(t)

	ctx, _ := doRequest(t, s, "GET", "/v1/validate?url=https%3A%2F%2Fexample.com")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	families, err := registry.Gather()
	require.NoError(t, err)

	var count uint64
	for _, mf := range families {
		if mf.GetName() == "fetchguard_guard_dns_lookup_duration_seconds" {
			require.Len(t, mf.GetMetric(), 1)
			count = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(1), count)
}

func TestValidate_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	ctx, _ := doRequest(t, s, "DELETE", "/v1/validate?url=https%3A%2F%2Fexample.com")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
}

func TestUnknownEndpoint(t *testing.T) {
	s := newTestServer(t)

	ctx, _ := doRequest(t, s, "GET", "/nope")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t)

	var req fasthttp.Request
	req.SetRequestURI("/health")
	req.Header.SetMethod("GET")
	req.Header.Set("X-Request-ID", "my-trace-7")

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)

	s.HandleRequest(ctx)

	assert.Equal(t, "my-trace-7", string(ctx.Response.Header.Peek("X-Request-ID")))
}
