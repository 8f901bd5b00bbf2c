package channels

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Srjnnnn/blendgate/pkg/batch"
	"github.com/Srjnnnn/blendgate/pkg/config"
	"github.com/Srjnnnn/blendgate/pkg/gateway"
	"github.com/Srjnnnn/blendgate/pkg/scene/memory"
)

func newTestGateway(t *testing.T) *gateway.Gateway {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()
	g, err := gateway.New(cfg, memory.NewBackend(), "test")
	if err != nil {
		t.Fatalf("gateway.New() error = %v", err)
	}
	return g
}

func newHTTPTestServer(t *testing.T, gw *gateway.Gateway) *httptest.Server {
	t.Helper()
	ch := NewHTTPChannel(config.HTTPConfig{}, gw)
	srv := httptest.NewServer(ch.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return body
}

func postJSON(t *testing.T, url, payload string, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(payload)))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return body
}

func TestHTTPStatusRoute(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	body := getJSON(t, srv.URL+"/status", http.StatusOK)
	if body["server"] != "blendgate" {
		t.Fatalf("server = %v, want blendgate", body["server"])
	}
}

func TestHTTPCommandEnvelope(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	body := postJSON(t, srv.URL+"/",
		`{"command": "add_object", "params": {"type": "cube", "name": "Box"}}`,
		http.StatusOK)
	if body["success"] != true {
		t.Fatalf("success = %v, body = %v", body["success"], body)
	}
	result := body["result"].(map[string]interface{})
	if result["name"] != "Box" {
		t.Fatalf("result name = %v, want Box", result["name"])
	}
}

func TestHTTPBatchEnvelopeAndPoll(t *testing.T) {
	gw := newTestGateway(t)
	srv := newHTTPTestServer(t, gw)

	body := postJSON(t, srv.URL+"/", `{
		"batch": [
			{"command": "add_object", "params": {"type": "cube", "name": "C1"}},
			{"command": "set_material", "params": {"object": "C1"},
			 "condition": {"depends_on": [0]}}
		]
	}`, http.StatusOK)

	id, _ := body["batch_id"].(string)
	if id == "" {
		t.Fatalf("batch_id missing, body = %v", body)
	}
	if body["total_commands"].(float64) != 2 {
		t.Fatalf("total_commands = %v, want 2", body["total_commands"])
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		poll := getJSON(t, srv.URL+"/batch/"+id, http.StatusOK)
		if poll["status"] == string(batch.StatusCompleted) {
			if poll["successful"].(float64) != 2 {
				t.Fatalf("successful = %v, want 2", poll["successful"])
			}
			results := poll["results"].([]interface{})
			if len(results) != 2 {
				t.Fatalf("results len = %d, want 2", len(results))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("batch did not complete in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHTTPBatchValidationRejected(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	body := postJSON(t, srv.URL+"/", `{
		"batch": [
			{"command": "add_object", "condition": {"depends_on": [1]}}
		]
	}`, http.StatusBadRequest)

	errBody := body["error"].(map[string]interface{})
	if errBody["kind"] != "BatchValidationError" {
		t.Fatalf("error kind = %v, want BatchValidationError", errBody["kind"])
	}
	if _, has := body["batch_id"]; has {
		t.Fatal("rejected batch must not carry a batch_id")
	}
}

func TestHTTPEnvelopeKeyOrder(t *testing.T) {
	// batch takes precedence over command when both keys are present,
	// matching the original dispatch order.
	srv := newHTTPTestServer(t, newTestGateway(t))
	body := postJSON(t, srv.URL+"/", `{
		"command": "add_object",
		"batch": [{"command": "add_object", "params": {"type": "cube"}}]
	}`, http.StatusOK)
	if _, has := body["batch_id"]; !has {
		t.Fatalf("batch key should win over command, body = %v", body)
	}
}

func TestHTTPTemplateEnvelope(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	body := postJSON(t, srv.URL+"/", `{"template": "studio_scene"}`, http.StatusOK)
	if body["template"] != "studio_scene" {
		t.Fatalf("template = %v", body["template"])
	}
	if body["batch_id"] == "" {
		t.Fatal("template application should return a batch_id")
	}
}

func TestHTTPTemplateNotFound(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	postJSON(t, srv.URL+"/", `{"template": "does_not_exist"}`, http.StatusNotFound)
}

func TestHTTPAIQueryEnvelope(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	body := postJSON(t, srv.URL+"/", `{"ai_query": "add a cube"}`, http.StatusOK)
	if body["success"] != true {
		t.Fatalf("success = %v, body = %v", body["success"], body)
	}
}

func TestHTTPMalformedJSON(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	postJSON(t, srv.URL+"/", `{"command": `, http.StatusBadRequest)
}

func TestHTTPUnknownPath(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHTTPMethodNotAllowed(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	resp, err := http.Post(srv.URL+"/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHTTPBatchNotFound(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	getJSON(t, srv.URL+"/batch/missing-id", http.StatusNotFound)
}

func TestHTTPCORSPreflight(t *testing.T) {
	srv := newHTTPTestServer(t, newTestGateway(t))
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin = %q, want *", got)
	}
}

func TestHTTPSceneTemplatesPresetsAIRoutes(t *testing.T) {
	gw := newTestGateway(t)
	srv := newHTTPTestServer(t, gw)

	postJSON(t, srv.URL+"/", `{"command": "add_object", "params": {"type": "cube"}}`, http.StatusOK)

	scene := getJSON(t, srv.URL+"/scene", http.StatusOK)
	if scene["counts"].(map[string]interface{})["mesh"].(float64) != 1 {
		t.Fatalf("scene counts = %v", scene["counts"])
	}

	tmpl := getJSON(t, srv.URL+"/templates", http.StatusOK)
	if len(tmpl["templates"].([]interface{})) == 0 {
		t.Fatal("no templates listed")
	}

	presets := getJSON(t, srv.URL+"/presets", http.StatusOK)
	if len(presets["presets"].(map[string]interface{})) == 0 {
		t.Fatal("no presets listed")
	}

	aiCtx := getJSON(t, srv.URL+"/ai/context", http.StatusOK)
	if _, has := aiCtx["complexity_score"]; !has {
		t.Fatalf("ai context missing complexity_score: %v", aiCtx)
	}

	sugg := getJSON(t, srv.URL+"/ai/suggestions?focus=lighting", http.StatusOK)
	if sugg["focus"] != "lighting" {
		t.Fatalf("focus = %v, want lighting", sugg["focus"])
	}
}

func TestHTTPBatchesListing(t *testing.T) {
	gw := newTestGateway(t)
	srv := newHTTPTestServer(t, gw)

	postJSON(t, srv.URL+"/", `{"batch": [{"command": "add_object", "params": {"type": "cube"}}]}`, http.StatusOK)

	deadline := time.Now().Add(5 * time.Second)
	for {
		body := getJSON(t, srv.URL+"/batches", http.StatusOK)
		batches := body["batches"].([]interface{})
		if len(batches) == 1 {
			first := batches[0].(map[string]interface{})
			if first["status"] == "completed" {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("batch listing never showed the completed batch")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHTTPAllowlistDeniesUnknownRemote(t *testing.T) {
	gw := newTestGateway(t)
	ch := NewHTTPChannel(config.HTTPConfig{AllowedRemotes: []string{"192.0.2.1"}}, gw)
	srv := httptest.NewServer(ch.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}
