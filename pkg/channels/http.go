package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/Srjnnnn/blendgate/pkg/batch"
	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/config"
	"github.com/Srjnnnn/blendgate/pkg/gateway"
	"github.com/Srjnnnn/blendgate/pkg/logger"
	"github.com/Srjnnnn/blendgate/pkg/templates"
)

const (
	httpShutdownTimeout = 5 * time.Second
	httpMaxBodyBytes    = 4 << 20
)

// HTTPChannel serves the REST surface: introspection GETs and the keyed
// request envelope on POST /.
type HTTPChannel struct {
	*BaseChannel
	gw     *gateway.Gateway
	cfg    config.HTTPConfig
	server *http.Server
	stop   context.CancelFunc
}

// NewHTTPChannel builds the HTTP front over gw.
func NewHTTPChannel(cfg config.HTTPConfig, gw *gateway.Gateway) *HTTPChannel {
	return &HTTPChannel{
		BaseChannel: NewBaseChannel("http", cfg.AllowedRemotes),
		gw:          gw,
		cfg:         cfg,
	}
}

// Handler returns the channel's full middleware stack. Exposed so tests
// can drive it through httptest without binding a port.
func (c *HTTPChannel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.handleRoot)
	mux.HandleFunc("/status", c.handleStatus)
	mux.HandleFunc("/scene", c.handleScene)
	mux.HandleFunc("/templates", c.handleTemplates)
	mux.HandleFunc("/presets", c.handlePresets)
	mux.HandleFunc("/ai/context", c.handleAIContext)
	mux.HandleFunc("/ai/suggestions", c.handleAISuggestions)
	mux.HandleFunc("/batch/", c.handleBatch)
	mux.HandleFunc("/batches", c.handleBatches)
	return gzhttp.GzipHandler(c.allow(c.cors(mux)))
}

// Start binds the listener and serves until ctx is cancelled or Stop is
// called.
func (c *HTTPChannel) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen on %s: %w", addr, err)
	}
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, c.stop = context.WithCancel(ctx)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- c.server.Serve(ln)
	}()

	c.setRunning(true)
	logger.InfoCF("http", "listening", map[string]interface{}{
		"addr": addr,
	})

	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			if err := c.server.Shutdown(shutdownCtx); err != nil {
				logger.WarnCF("http", "shutdown_error", map[string]interface{}{
					"error": err,
				})
			}
			cancel()
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorCF("http", "serve_error", map[string]interface{}{
					"error": err,
				})
			}
		}
		c.setRunning(false)
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (c *HTTPChannel) Stop() error {
	if c.stop != nil {
		c.stop()
	}
	c.setRunning(false)
	return nil
}

// cors adds the wide-open CORS policy the original tool shipped with and
// answers preflight requests.
func (c *HTTPChannel) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow rejects remotes outside the allowlist.
func (c *HTTPChannel) allow(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.IsAllowed(r.RemoteAddr) {
			writeError(w, http.StatusForbidden,
				command.NewError(command.KindInvalidParameter, "remote %s not allowed", r.RemoteAddr))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *HTTPChannel) handleRoot(w http.ResponseWriter, r *http.Request) {
	// The mux routes every unknown path here; only the exact root is a
	// valid envelope target.
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed,
			command.NewError(command.KindInvalidParameter, "use POST for command envelopes"))
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, httpMaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest,
			command.NewError(command.KindInvalidParameter, "read body: %s", err.Error()))
		return
	}

	resp, err := dispatchEnvelope(r.Context(), c.gw, raw)
	if err != nil {
		writeError(w, envelopeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *HTTPChannel) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, c.gw.Status(r.Context()))
}

func (c *HTTPChannel) handleScene(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, err := c.gw.SceneData(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (c *HTTPChannel) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	list, err := c.gw.ListTemplates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": list})
}

func (c *HTTPChannel) handlePresets(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	presets, err := c.gw.Presets()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"presets": presets})
}

func (c *HTTPChannel) handleAIContext(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	aiCtx, err := c.gw.AIContext(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, aiCtx)
}

func (c *HTTPChannel) handleAISuggestions(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	focus := r.URL.Query().Get("focus")
	if focus == "" {
		focus = "all"
	}
	suggestions, err := c.gw.AISuggestions(r.Context(), focus)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"focus":       focus,
		"suggestions": suggestions,
	})
}

func (c *HTTPChannel) handleBatch(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/batch/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	result, err := c.gw.PollBatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, batch.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Wire())
}

// handleBatches lists recent resident batches, newest first. The monitor
// dashboard polls this alongside /status.
func (c *HTTPChannel) handleBatches(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	results := c.gw.RecentBatches(limit)
	wires := make([]map[string]interface{}, len(results))
	for i, result := range results {
		wires[i] = result.Wire()
		wires[i]["submitted_at"] = result.SubmittedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"batches": wires})
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed,
			command.NewError(command.KindInvalidParameter, "method %s not allowed", r.Method))
		return false
	}
	return true
}

// envelopeStatus maps dispatch errors to HTTP codes: structural failures
// are the caller's fault, missing templates are 404, the rest is ours.
func envelopeStatus(err error) int {
	if errors.Is(err, templates.ErrNotFound) {
		return http.StatusNotFound
	}
	if ce, ok := command.AsError(err); ok {
		switch ce.Kind {
		case command.KindBatchValidationError, command.KindInvalidParameter, command.KindMissingParameter:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("http", "encode_failed", map[string]interface{}{
			"error": err,
		})
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	ce, ok := command.AsError(err)
	if !ok {
		ce = command.NewError(command.KindBackendError, "%s", err.Error())
	}
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"kind":    string(ce.Kind),
			"message": ce.Message,
		},
	})
}
