package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"skyshield/interceptor/internal/auth"
	"skyshield/interceptor/internal/logging"
	"skyshield/interceptor/internal/vision"
)

func newTestServer(t *testing.T, app *App) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(newHandler(app, logging.NewTestLogger()))
	t.Cleanup(server.Close)
	return server
}

func dialWS(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", rawURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForApp(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestVisionSocketFeedsMeasurements(t *testing.T) {
	app := newTestApp(t)
	server := newTestServer(t, app)
	conn := dialWS(t, "ws"+strings.TrimPrefix(server.URL, "http")+"/v1/vision")

	//1.- A malformed frame is dropped without killing the socket; the valid
	// frame behind it still lands on the ingress channel.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"schema_version":`)); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}
	valid := []byte(`{"schema_version":"v1","projectile_id":9,"t":0.25,"position":[4.1,-0.2,1.3]}`)
	if err := conn.WriteMessage(websocket.TextMessage, valid); err != nil {
		t.Fatalf("write valid frame: %v", err)
	}

	var got *vision.Measurement
	select {
	case got = <-app.measurements:
	case <-time.After(2 * time.Second):
		t.Fatal("no measurement reached the ingress channel")
	}
	if got.ProjectileID != 9 || got.Time != 0.25 {
		t.Fatalf("wrong measurement arrived: %+v", got)
	}
	if got.Position != [3]float64{4.1, -0.2, 1.3} {
		t.Fatalf("wrong position arrived: %v", got.Position)
	}
}

func TestVisionSocketRequiresToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.VisionToken = "lens-secret"
	app, err := newApp(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(app.Stop)
	server := newTestServer(t, app)
	base := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/vision"

	//1.- No token: the upgrade is refused before the websocket handshake.
	if _, resp, err := websocket.DefaultDialer.Dial(base, nil); err == nil {
		t.Fatal("dial without token should fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 handshake response, got %+v", resp)
	}

	//2.- A minted token opens the feed and frames flow through.
	issuer, err := auth.NewTokenIssuer("lens-secret", time.Minute)
	if err != nil {
		t.Fatalf("build issuer: %v", err)
	}
	token, err := issuer.Mint("vision-rig", "interceptor")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	conn := dialWS(t, base+"?auth_token="+token)
	frame := []byte(`{"schema_version":"v1","projectile_id":2,"t":0.5,"position":[3.5,0,1.8]}`)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	select {
	case got := <-app.measurements:
		if got.ProjectileID != 2 {
			t.Fatalf("wrong projectile: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("authorized frame never arrived")
	}
}

func TestTelemetrySocketStreamsSnapshots(t *testing.T) {
	app := newTestApp(t)
	server := newTestServer(t, app)

	if err := app.controlCycle(1.0 / float64(app.cfg.ControlRateHz)); err != nil {
		t.Fatalf("prime cycle: %v", err)
	}
	conn := dialWS(t, "ws"+strings.TrimPrefix(server.URL, "http")+"/v1/telemetry")
	waitForApp(t, 2*time.Second, func() bool { return app.hub.ClientCount() == 1 })

	app.telemetryCycle()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap struct {
		Frame   uint64  `json:"frame"`
		SimTime float64 `json:"sim_time"`
		Phase   string  `json:"phase"`
	}
	if err := json.Unmarshal(payload, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Phase != "idle" {
		t.Fatalf("snapshot phase %q, want idle", snap.Phase)
	}
	if snap.SimTime <= 0 {
		t.Fatalf("snapshot sim time %v, want > 0", snap.SimTime)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	app := newTestApp(t)
	server := newTestServer(t, app)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/readyz")
	if err != nil {
		t.Fatalf("get readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/v1/session/flush", "application/json", nil)
	if err != nil {
		t.Fatalf("post flush: %v", err)
	}
	var flush struct {
		Status   string `json:"status"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&flush); err != nil {
		t.Fatalf("decode flush response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || flush.Status != "flushed" {
		t.Fatalf("flush status %d %q", resp.StatusCode, flush.Status)
	}
	if flush.Location == "" {
		t.Fatal("flush response missing the session directory")
	}

	resp, err = http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
}
