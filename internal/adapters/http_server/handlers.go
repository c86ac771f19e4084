// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"crowdcount/internal/app"
	"crowdcount/internal/domain"
)

const maxBodyBytes = 64 << 10

type Handlers struct {
	Estimates *app.EstimateService
	Geocodes  *app.GeocodeService // nil when no geocoding key is configured
	Strict    bool                // reject inputs the normalizer had to repair
}

type problem struct {
	Type   string   `json:"type"`
	Title  string   `json:"title"`
	Status int      `json:"status"`
	Detail string   `json:"detail,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Post("/api/estimate", h.estimate)
	s.mux.Options("/api/estimate", noContent)
	s.mux.Get("/api/geocode", h.geocode)
	s.mux.Post("/api/geocode", h.geocode)
	s.mux.Options("/api/geocode", noContent)
}

func noContent(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemDoc(w, problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeProblemDoc(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal response")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeProblem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "request body exceeds 64 KiB")
			return nil, false
		}
		writeProblem(w, http.StatusBadRequest, "Bad Request", "could not read request body")
		return nil, false
	}
	return raw, true
}

func (h *Handlers) estimate(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	in, issues := app.Normalize(raw)
	if len(issues) > 0 {
		if h.Strict {
			p := problem{Type: "about:blank", Title: "Invalid Input", Status: http.StatusBadRequest, Detail: "the request did not validate"}
			for _, is := range issues {
				p.Errors = append(p.Errors, is.String())
			}
			writeProblemDoc(w, p)
			return
		}
		log.Debug().Int("issues", len(issues)).Str("first", issues[0].String()).Msg("input repaired by normalizer")
	}

	res := h.Estimates.Estimate(r.Context(), in, r.Header.Get("Accept-Language"))
	body, err := json.Marshal(res)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not encode estimate")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handlers) geocode(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if r.Method == http.MethodPost {
		raw, ok := readBody(w, r)
		if !ok {
			return
		}
		var req struct {
			Address string `json:"address"`
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &req); err != nil {
				writeProblem(w, http.StatusBadRequest, "Bad Request", "body must be a JSON object with an address")
				return
			}
		}
		if req.Address != "" {
			address = req.Address
		}
	}
	if strings.TrimSpace(address) == "" {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "address is required")
		return
	}
	if h.Geocodes == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Service Unavailable", "geocoding is not configured")
		return
	}

	c, err := h.Geocodes.Geocode(r.Context(), address)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "address could not be resolved")
		return
	case err != nil:
		log.Warn().Err(err).Msg("geocode failed")
		writeProblem(w, http.StatusBadGateway, "Bad Gateway", "geocoding provider failed")
		return
	}

	etag, body := calcETagAndBody(c)
	if inm := r.Header.Get("If-None-Match"); r.Method == http.MethodGet && inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	writeJSON(w, http.StatusOK, body)
}
