package routeros

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultRESTPort is the HTTPS port of the RouterOS v7 REST API.
const DefaultRESTPort = 443

// restError is the body RouterOS returns with 4xx answers.
type restError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// RESTClient sends commands through the RouterOS v7 REST API. Every command
// goes through the universal "POST /rest/<path>" form, so the same Command
// values work for both transports.
type RESTClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// RESTOption is a functional option for configuring the RESTClient.
type RESTOption func(*RESTClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) RESTOption {
	return func(c *RESTClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRESTLogger sets a custom logger.
func WithRESTLogger(logger *slog.Logger) RESTOption {
	return func(c *RESTClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRESTClient creates a REST client for baseURL (e.g. https://192.168.88.1).
func NewRESTClient(baseURL, username, password string, opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send implements Channel.
func (c *RESTClient) Send(ctx context.Context, cmd Command) (Responses, error) {
	body := make(map[string]any, len(cmd.Attrs)+1)
	for _, a := range cmd.Attrs {
		body[a.Key] = a.Value
	}
	if len(cmd.Queries) > 0 {
		queries := make([]string, 0, len(cmd.Queries))
		for _, q := range cmd.Queries {
			queries = append(queries, q.Key+"="+q.Value)
		}
		body[".query"] = queries
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ChannelError{Op: cmd.Path, Err: fmt.Errorf("encoding request: %w", err)}
	}

	reqURL := c.baseURL + "/rest" + cmd.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &ChannelError{Op: cmd.Path, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("sending device command",
		slog.String("command", cmd.Path),
		slog.String("transport", "rest"),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ChannelError{Op: cmd.Path, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ChannelError{Op: cmd.Path, Err: fmt.Errorf("reading response body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return decodeRESTBody(cmd, data)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &ChannelError{Op: cmd.Path, Err: ErrAuthenticationFailed}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var re restError
		if err := json.Unmarshal(data, &re); err != nil {
			return nil, &ChannelError{Op: cmd.Path, Err: fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(data))}
		}
		msg := re.Detail
		if msg == "" {
			msg = re.Message
		}
		return Responses{Trap{Message: msg}, Done{Attrs: map[string]string{}}}, nil
	default:
		return nil, &ChannelError{Op: cmd.Path, Err: fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(data))}
	}
}

// decodeRESTBody maps a JSON answer onto Reply/Done elements. Print commands
// answer with an array of records, add answers with {"ret": id}, and set or
// remove answer with an empty array.
func decodeRESTBody(cmd Command, data []byte) (Responses, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Responses{Done{Attrs: map[string]string{}}}, nil
	}

	var resps Responses
	switch trimmed[0] {
	case '[':
		var records []map[string]any
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, &ChannelError{Op: cmd.Path, Err: fmt.Errorf("parsing response JSON: %w", err)}
		}
		for _, rec := range records {
			resps = append(resps, Reply{Attrs: stringify(rec)})
		}
		resps = append(resps, Done{Attrs: map[string]string{}})
	case '{':
		var rec map[string]any
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, &ChannelError{Op: cmd.Path, Err: fmt.Errorf("parsing response JSON: %w", err)}
		}
		attrs := stringify(rec)
		if ret, ok := attrs["ret"]; ok && len(attrs) == 1 {
			resps = append(resps, Done{Attrs: map[string]string{"ret": ret}})
		} else {
			resps = append(resps, Reply{Attrs: attrs}, Done{Attrs: map[string]string{}})
		}
	default:
		return nil, &ChannelError{Op: cmd.Path, Err: fmt.Errorf("unexpected response body: %s", string(trimmed))}
	}
	return resps, nil
}

func stringify(rec map[string]any) map[string]string {
	out := make(map[string]string, len(rec))
	for k, v := range rec {
		switch v := v.(type) {
		case string:
			out[k] = v
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// Close releases idle HTTP connections.
func (c *RESTClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
