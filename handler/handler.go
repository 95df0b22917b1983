// Package handler exposes a Hawk over a small local HTTP API for inspection
// and administration.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/stevemurr/hawk"
)

// Handler holds the server dependencies and registers routes.
type Handler struct {
	hawk   *hawk.Hawk
	logger hclog.Logger
	mux    *http.ServeMux
}

// New creates a Handler and wires up all routes.
func New(h *hawk.Hawk, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	hd := &Handler{hawk: h, logger: logger.Named("http"), mux: http.NewServeMux()}
	hd.routes()
	return hd
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	// Health / status
	h.mux.HandleFunc("GET /", h.root)
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("GET /status", h.status)

	// Values
	h.mux.HandleFunc("GET /keys", h.listKeys)
	h.mux.HandleFunc("GET /keys/{key}", h.getValue)
	h.mux.HandleFunc("GET /keys/{key}/exists", h.exists)
	h.mux.HandleFunc("PUT /keys/{key}", h.putValue)
	h.mux.HandleFunc("DELETE /keys/{key}", h.deleteValue)
	h.mux.HandleFunc("GET /count", h.count)
	h.mux.HandleFunc("POST /remove", h.removeKeys)
	h.mux.HandleFunc("POST /clear", h.clear)
	h.mux.HandleFunc("POST /chain", h.chain)

	// Encryption
	h.mux.HandleFunc("POST /crypto/reset", h.resetCrypto)
	h.mux.HandleFunc("POST /capability/reset", h.resetCapability)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// fail maps a Hawk error to a status code.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var encErr *hawk.EncodingError
	switch {
	case errors.Is(err, hawk.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &encErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, hawk.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// readJSON decodes the body keeping numbers as json.Number.
func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// normalize turns json.Number into int64 when exact and float64 otherwise,
// so stored values get Int or Float tags.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalize(t[k])
		}
		return t
	default:
		return v
	}
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	// Only match exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "hawkd",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	n, err := h.hawk.Count()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     h.hawk.State().String(),
		"encrypted": h.hawk.Encrypted(),
		"count":     n,
		"logLevel":  h.hawk.LogLevel().String(),
	})
}

// ---------- values ----------

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.hawk.Keys()
	if err != nil {
		h.fail(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *Handler) getValue(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, ok, err := h.hawk.Get(key)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": v})
}

func (h *Handler) exists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.hawk.Contains(r.PathValue("key"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

func (h *Handler) putValue(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var incoming any
	if err := readJSON(r, &incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	value := normalize(incoming)
	if err := h.hawk.Put(key, value); err != nil {
		h.fail(w, err)
		return
	}
	if value == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

func (h *Handler) deleteValue(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.hawk.Remove(key); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	n, err := h.hawk.Count()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) removeKeys(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.hawk.RemoveAll(req.Keys...); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "keys": req.Keys})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.hawk.Clear(); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// chain writes all items in one atomic batch. Items that cannot be encoded
// are skipped and counted as dropped.
func (h *Handler) chain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []struct {
			Key   string `json:"key"`
			Value any    `json:"value"`
		} `json:"items"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	c := h.hawk.ChainWithCapacity(len(req.Items))
	for _, item := range req.Items {
		if err := c.Put(item.Key, normalize(item.Value)); err != nil {
			h.fail(w, err)
			return
		}
	}
	committed := c.Len()
	if err := c.Commit(); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"committed": committed,
		"dropped":   len(req.Items) - committed,
	})
}

// ---------- encryption ----------

func (h *Handler) resetCrypto(w http.ResponseWriter, r *http.Request) {
	if err := h.hawk.ResetCrypto(); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// resetCapability forgets a previous probe failure and probes again.
func (h *Handler) resetCapability(w http.ResponseWriter, r *http.Request) {
	if err := h.hawk.ResetCapability(); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.hawk.Init(); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.hawk.State().String()})
}
