package auctiond

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oysterpack/oysterpack-smart/api"
)

// startControlListener serves the vsock protocol over loopback TCP so the
// wire format can be tested without vsock hardware.
func startControlListener(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ln) }()
	t.Cleanup(func() {
		_ = ln.Close()
		require.NoError(t, <-done)
	})
	return ln.Addr().String()
}

func controlRoundTrip(t *testing.T, addr string, req vsockRequest) vsockResponse {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, json.NewEncoder(conn).Encode(req))
	var resp vsockResponse
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func TestServer_VsockPing(t *testing.T) {
	f := newServerFixture(t)
	addr := startControlListener(t, f.srv)

	resp := controlRoundTrip(t, addr, vsockRequest{Op: "ping"})
	require.True(t, resp.OK)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	require.Contains(t, result["message"], "healthy")
	require.Greater(t, result["timestamp"], float64(0))
}

func TestServer_VsockAccountOps(t *testing.T) {
	f := newServerFixture(t)
	addr := startControlListener(t, f.srv)

	resp := controlRoundTrip(t, addr, vsockRequest{
		Op:   "create_account",
		Body: json.RawMessage(`{"name":"carol"}`),
	})
	require.True(t, resp.OK)
	created, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "carol", created["name"])
	require.NotEmpty(t, created["address"])

	resp = controlRoundTrip(t, addr, vsockRequest{Op: "list_accounts"})
	require.True(t, resp.OK)
	listed, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	require.Len(t, listed["accounts"], 2) // operator plus carol
}

func TestServer_VsockErrors(t *testing.T) {
	f := newServerFixture(t)
	addr := startControlListener(t, f.srv)

	resp := controlRoundTrip(t, addr, vsockRequest{Op: "warp_speed"})
	require.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	require.Equal(t, api.KindInvalidArgument, resp.Error.Kind)

	resp = controlRoundTrip(t, addr, vsockRequest{Op: "get_auction"})
	require.False(t, resp.OK)
	require.Equal(t, api.KindInvalidArgument, resp.Error.Kind)
	require.Contains(t, resp.Error.Error, "app_id")

	resp = controlRoundTrip(t, addr, vsockRequest{Op: "get_auction", AppID: 999999})
	require.False(t, resp.OK)
	require.Equal(t, api.KindNotFound, resp.Error.Kind)

	resp = controlRoundTrip(t, addr, vsockRequest{
		Op:   "create_account",
		Body: json.RawMessage(`{"name":""}`),
	})
	require.False(t, resp.OK)
	require.Equal(t, api.KindInvalidArgument, resp.Error.Kind)
}

func TestServer_VsockFullCycle(t *testing.T) {
	f := newServerFixture(t)
	addr := startControlListener(t, f.srv)

	// Stand up a seller with funds over the control surface.
	resp := controlRoundTrip(t, addr, vsockRequest{
		Op:   "create_account",
		Body: json.RawMessage(`{"name":"seller"}`),
	})
	require.True(t, resp.OK)
	created := resp.Result.(map[string]any)
	address := created["address"].(string)

	resp = controlRoundTrip(t, addr, vsockRequest{
		Op:   "fund_account",
		Body: json.RawMessage(`{"address":"` + address + `"}`),
	})
	require.True(t, resp.OK)

	resp = controlRoundTrip(t, addr, vsockRequest{
		Op:   "create_auction",
		Body: json.RawMessage(`{"seller":"seller"}`),
	})
	require.True(t, resp.OK)
	createdAuction := resp.Result.(map[string]any)
	appID := uint64(createdAuction["app_id"].(float64))
	require.NotZero(t, appID)

	resp = controlRoundTrip(t, addr, vsockRequest{Op: "get_auction", AppID: appID})
	require.True(t, resp.OK)
	fetched := resp.Result.(map[string]any)
	require.Equal(t, "New", fetched["status"])
	require.Equal(t, address, fetched["seller"])

	resp = controlRoundTrip(t, addr, vsockRequest{Op: "creation_fees"})
	require.True(t, resp.OK)
	fees := resp.Result.(map[string]any)
	require.Equal(t, float64(371_000), fees["micro_algos"])
}
