package api

import (
	"embed"
	"html"
	"net/http"
	"strings"
)

//go:embed ui/index.html ui/app.js
var uiFS embed.FS

// customDNSPlaceholder is replaced in index.html with the configured servers.
const customDNSPlaceholder = "{{CUSTOM_DNS}}"

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	page, err := uiFS.ReadFile("ui/index.html")
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "UI template not found")
		return
	}
	body := strings.ReplaceAll(string(page), customDNSPlaceholder, html.EscapeString(s.customDNS))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	script, err := uiFS.ReadFile("ui/app.js")
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "UI script not found")
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write(script)
}
