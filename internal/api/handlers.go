package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/reconciler"
)

// HeaderRealIP names the client when set by a trusted proxy or by the page
// acting on behalf of another address.
const HeaderRealIP = "X-Real-IP"

// clientAddr returns the address the request acts for: X-Real-IP when
// trusted and present, else the connection's remote address. Validation is
// left to the reconciler.
func (s *Server) clientAddr(r *http.Request) string {
	if s.trustRealIP {
		if v := strings.TrimSpace(r.Header.Get(HeaderRealIP)); v != "" {
			return v
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.requestTimeout)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, client string, err error) {
	status, code := errorStatus(err)
	attrs := []slog.Attr{
		slog.String("client", client),
		slog.String("code", code),
		slog.String("error", err.Error()),
		slog.String("request_id", RequestIDFrom(r.Context())),
	}
	if status >= http.StatusInternalServerError {
		s.logger.LogAttrs(r.Context(), slog.LevelError, "request failed", attrs...)
	} else {
		s.logger.LogAttrs(r.Context(), slog.LevelDebug, "request refused", attrs...)
	}
	writeError(w, r, status, code, err.Error())
}

// InfoData is returned by GET /api.
type InfoData struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	CustomDNS string            `json:"custom_dns"`
	UI        string            `json:"ui"`
	Endpoints map[string]string `json:"endpoints"`
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeData(w, InfoData{
		Service:   "dnsswitcher",
		Version:   s.version,
		CustomDNS: s.customDNS,
		UI:        "Visit / for the web interface",
		Endpoints: map[string]string{
			"GET /api/dns":          "Show the DNS servers your address receives",
			"PUT /api/dns":          "Switch to custom DNS (" + s.customDNS + ")",
			"DELETE /api/dns":       "Remove custom DNS and use the DHCP server default",
			"POST /api/dns/custom":  "Same as PUT /api/dns",
			"POST /api/dns/default": "Same as DELETE /api/dns",
		},
	})
}

func (s *Server) handleGetDNS(w http.ResponseWriter, r *http.Request) {
	client := s.clientAddr(r)
	ctx, cancel := s.requestContext(r)
	defer cancel()

	state, err := s.service.Describe(ctx, client)
	if err != nil {
		s.fail(w, r, client, err)
		return
	}
	writeData(w, newDNSData(state))
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, client string) (*reconciler.Result, error) {
		return s.service.ApplyCustomDNS(ctx, client)
	})
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.service.RemoveCustomDNS)
}

// mutate runs op for the client and answers with the client's state read
// afterwards.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*reconciler.Result, error)) {
	client := s.clientAddr(r)
	ctx, cancel := s.requestContext(r)
	defer cancel()

	result, err := op(ctx, client)
	if err != nil {
		s.fail(w, r, client, err)
		return
	}

	state, err := s.service.Describe(ctx, client)
	if err != nil {
		s.fail(w, r, client, err)
		return
	}

	data := newDNSData(state)
	data.DryRun = result.DryRun
	for _, a := range result.Actions {
		data.Actions = append(data.Actions, a.String())
	}
	writeData(w, data)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, CodeNotFound, "not found")
}
