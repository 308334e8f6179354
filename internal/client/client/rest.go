package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
	"github.com/dmitrijs2005/bizkeeper/internal/client/scope"
	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
	"golang.org/x/oauth2"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 8 << 20
)

// RESTClient implements Client over HTTP+JSON.
type RESTClient struct {
	baseURL string
	http    *http.Client
	tokens  oauth2.TokenSource
	log     logging.Logger
}

type Option func(*RESTClient)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(h *http.Client) Option {
	return func(c *RESTClient) { c.http = h }
}

func WithTimeout(d time.Duration) Option {
	return func(c *RESTClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTokenSource authorizes every request with a bearer token from ts.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *RESTClient) { c.tokens = ts }
}

func WithLogger(l logging.Logger) Option {
	return func(c *RESTClient) { c.log = l }
}

func NewRESTClient(baseURL string, opts ...Option) (*RESTClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}

	c := &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.tokens != nil {
		authorized := *c.http
		authorized.Transport = &oauth2.Transport{Source: c.tokens, Base: c.http.Transport}
		c.http = &authorized
	}
	return c, nil
}

func (c *RESTClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	return err
}

// List fetches every record of the scope. The body may be a bare array or an
// object wrapping it under "items", "data" or the resource name. Items that
// are not valid records are skipped.
func (c *RESTClient) List(ctx context.Context, sc scope.Scope) ([]models.RemoteRecord, error) {
	body, err := c.do(ctx, http.MethodGet, sc.CollectionPath(), nil, nil)
	if err != nil {
		return nil, err
	}

	items, err := listItems(body, string(sc.Kind))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed list response: %w", ErrUnavailable, err)
	}

	out := make([]models.RemoteRecord, 0, len(items))
	for _, item := range items {
		var r models.RemoteRecord
		if err := json.Unmarshal(item, &r); err != nil {
			c.log.Warn(ctx, "skipping malformed remote record", "scope", sc.String(), "err", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Create posts a new record. Repeating the call with the same idempotencyKey
// must not create a second record on a conforming server.
func (c *RESTClient) Create(ctx context.Context, sc scope.Scope, d models.Draft, idempotencyKey string) (models.RemoteRecord, error) {
	h := http.Header{}
	if idempotencyKey != "" {
		h.Set(common.IdempotencyKeyHeader, idempotencyKey)
	}

	body, err := c.do(ctx, http.MethodPost, sc.CollectionPath(), d.Body(), h)
	if err != nil {
		return models.RemoteRecord{}, err
	}

	r, err := decodeOne(body)
	if err != nil {
		return models.RemoteRecord{}, fmt.Errorf("%w: malformed create response: %w", ErrUnavailable, err)
	}
	return r, nil
}

// Update replaces the editable fields of a record. A 204 response yields the
// draft echoed back under serverID.
func (c *RESTClient) Update(ctx context.Context, sc scope.Scope, serverID int64, d models.Draft) (models.RemoteRecord, error) {
	body, err := c.do(ctx, http.MethodPut, itemPath(sc, serverID), d.Body(), nil)
	if err != nil {
		return models.RemoteRecord{}, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return models.RemoteRecord{ID: serverID, Title: d.Title, Status: d.Status, Priority: d.Priority, Extra: d.Attrs}, nil
	}

	r, err := decodeOne(body)
	if err != nil {
		return models.RemoteRecord{}, fmt.Errorf("%w: malformed update response: %w", ErrUnavailable, err)
	}
	return r, nil
}

func (c *RESTClient) Delete(ctx context.Context, sc scope.Scope, serverID int64) error {
	_, err := c.do(ctx, http.MethodDelete, itemPath(sc, serverID), nil, nil)
	return err
}

func (c *RESTClient) do(ctx context.Context, method, path string, payload any, h http.Header) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range h {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug(ctx, "request failed", "method", method, "path", path, "err", err)
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}
	if err := statusError(resp, body); err != nil {
		c.log.Debug(ctx, "request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return nil, err
	}
	return body, nil
}

func itemPath(sc scope.Scope, serverID int64) string {
	return sc.CollectionPath() + "/" + strconv.FormatInt(serverID, 10)
}

// transportError classifies a failure before any response was received.
// Token problems surface here since the oauth2 transport fails the request.
func transportError(err error) error {
	if errors.Is(err, common.ErrTokenExpired) || errors.Is(err, common.ErrInvalidToken) {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func statusError(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	var sentinel error
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		sentinel = ErrUnauthorized
	case code == http.StatusNotFound:
		sentinel = ErrNotFound
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		sentinel = ErrUnavailable
	default:
		sentinel = ErrRejected
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return fmt.Errorf("%w: %s", sentinel, resp.Status)
	}
	return fmt.Errorf("%w: %s: %s", sentinel, resp.Status, msg)
}

func listItems(body []byte, kind string) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	var items []json.RawMessage
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, err
	}
	for _, k := range []string{"items", "data", kind} {
		if v, ok := wrapper[k]; ok {
			if err := json.Unmarshal(v, &items); err != nil {
				return nil, fmt.Errorf("%q is not an array: %w", k, err)
			}
			return items, nil
		}
	}
	return nil, errors.New("no record array in response")
}

// decodeOne accepts a record object, optionally wrapped under "data".
func decodeOne(body []byte) (models.RemoteRecord, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Data) > 0 && wrapper.Data[0] == '{' {
		body = wrapper.Data
	}

	var r models.RemoteRecord
	if err := json.Unmarshal(body, &r); err != nil {
		return models.RemoteRecord{}, err
	}
	return r, nil
}
