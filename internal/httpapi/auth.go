package httpapi

import (
	"bufio"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// withLogging logs every request after it completes, mirroring the
// teacher's withLogging (a status-capturing responseWriter wrapper around
// the real one).
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Info("httpapi: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack forwards to the underlying ResponseWriter so the streaming
// handlers' http.ResponseController(w).Hijack() calls reach the real
// connection through this status-capturing wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// withWhitelist enforces §6's "web_whitelist of CIDRs... after reading the
// request" (403 on mismatch, skipped entirely when the list is empty).
func (s *Server) withWhitelist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.deps.Config
		if len(cfg.System.WebWhitelist) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := remoteIP(r)
		if ip == nil || !ipInWhitelist(ip, cfg.System.WebWhitelist) {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "forbidden by whitelist"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ipInWhitelist(ip net.IP, cidrs []string) bool {
	for _, raw := range cidrs {
		_, network, err := net.ParseCIDR(raw)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

// withAuth enforces §6's basic-auth gate: required whenever web_enable_auth
// is set, unless the caller is loopback and web_auth_skiplocal is true
// (§4bis "Auth"). A bcrypt hash (prefixed "$2") is compared with
// bcrypt.CompareHashAndPassword; a plain-text password compares via
// crypto/subtle.ConstantTimeCompare so failure timing never leaks which
// byte differed.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.deps.Config
		if !cfg.System.WebEnableAuth {
			next.ServeHTTP(w, r)
			return
		}
		if cfg.System.WebAuthSkipLocal && isLoopback(r) {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || !credentialsMatch(cfg.System.WebAuthUser, cfg.System.WebAuthPass, user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="divinus"`)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopback(r *http.Request) bool {
	ip := remoteIP(r)
	return ip != nil && ip.IsLoopback()
}

func credentialsMatch(wantUser, wantPass, gotUser, gotPass string) bool {
	if subtle.ConstantTimeCompare([]byte(gotUser), []byte(wantUser)) != 1 {
		return false
	}
	if strings.HasPrefix(wantPass, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(wantPass), []byte(gotPass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(gotPass), []byte(wantPass)) == 1
}
