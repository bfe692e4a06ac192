package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/decred/slog"

	"closedgroups/internal/domain"
)

// maxBodySize bounds stored message bodies.
const maxBodySize = 1 << 20

// Server serves a Mailbox over HTTP.
type Server struct {
	box *Mailbox
	log slog.Logger
}

// NewServer returns a Server over box. A nil logger disables logging.
func NewServer(box *Mailbox, log slog.Logger) *Server {
	if log == nil {
		log = slog.Disabled
	}
	return &Server{box: box, log: log}
}

// Handler returns the HTTP handler of the relay API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /swarm/{pk}", s.handleSwarm)
	mux.HandleFunc("POST /msg/{pk}", s.handleStore)
	mux.HandleFunc("GET /msg/{pk}", s.handleFetch)
	return s.accessLog(mux)
}

func (s *Server) handleSwarm(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.pathKey(w, r); !ok {
		return
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, []domain.Node{{URL: scheme + "://" + r.Host}})
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	pk, ok := s.pathKey(w, r)
	if !ok {
		return
	}
	var req storeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "bad body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Data) == 0 {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}
	env := s.box.Put(pk, req.Data)
	s.log.Debugf("Stored %d bytes for %s (%s)", len(req.Data), pk, env.Hash)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	pk, ok := s.pathKey(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.box.After(pk, r.URL.Query().Get("last_hash")))
}

func (s *Server) pathKey(w http.ResponseWriter, r *http.Request) (domain.X25519Public, bool) {
	pk, err := domain.ParseX25519Public(r.PathValue("pk"))
	if err != nil {
		http.Error(w, "bad public key", http.StatusBadRequest)
		return pk, false
	}
	return pk, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// statusWriter records the status and size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		s.log.Tracef("%s %s from %s: %d %dB in %s", r.Method, r.URL.Path,
			r.RemoteAddr, sw.status, sw.bytes, time.Since(start))
	})
}
