package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/reconciler"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

// Error codes returned in the error envelope.
const (
	CodeConflict          = "conflict"
	CodeInvalidRequest    = "invalid_request"
	CodeDeviceUnavailable = "device_unavailable"
	CodeDeviceRejected    = "device_rejected"
	CodeTimeout           = "timeout"
	CodeNotFound          = "not_found"
	CodeInternal          = "internal"
)

// Envelope wraps every JSON response.
type Envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a failed request.
type Error struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// DNSData is the client view returned by the /api/dns routes.
type DNSData struct {
	IP         string `json:"ip"`
	Status     string `json:"status"`
	CurrentDNS string `json:"current_dns"`
	Source     string `json:"source"`

	// OptionValue is the encoded DHCP option value when Source is "lease".
	OptionValue string `json:"option_value,omitempty"`

	// Set on apply and revert.
	DryRun  bool     `json:"dry_run,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

func newDNSData(state *reconciler.ClientState) DNSData {
	return DNSData{
		IP:          state.Client,
		Status:      string(state.Status),
		CurrentDNS:  state.DNS.Value(),
		Source:      string(state.DNS.Source),
		OptionValue: state.DNS.Raw,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, Envelope{Error: &Error{
		Message:   message,
		Code:      code,
		RequestID: RequestIDFrom(r.Context()),
	}})
}

// errorStatus maps an operation error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case ownership.IsConflict(err):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, reconciler.ErrInvalidClient), errors.Is(err, reconciler.ErrNoServers):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case routeros.IsChannelFailure(err):
		return http.StatusServiceUnavailable, CodeDeviceUnavailable
	case errors.Is(err, routeros.ErrDeviceRejected):
		return http.StatusBadGateway, CodeDeviceRejected
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
