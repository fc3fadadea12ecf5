package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labfleet/labfleet/pkg/types"
	"github.com/sony/gobreaker"
)

// SystemInformation is the unauthenticated identity endpoint payload
type SystemInformation struct {
	Version string                 `json:"version"`
	Ready   bool                   `json:"ready"`
	Raw     map[string]interface{} `json:"-"`
}

// SystemHealth is the authenticated health endpoint payload
type SystemHealth struct {
	Valid bool                   `json:"valid"`
	Raw   map[string]interface{} `json:"-"`
}

// SystemStats carries the Service's aggregate counters
type SystemStats struct {
	Labs  int                    `json:"labs"`
	Nodes int                    `json:"nodes"`
	Links int                    `json:"links"`
	Raw   map[string]interface{} `json:"-"`
}

// Licensing is the raw licensing document
type Licensing struct {
	Raw map[string]interface{} `json:"-"`
}

// API is the port to the Service hosted on one worker
type API interface {
	Authenticate(ctx context.Context) error
	GetSystemInformation(ctx context.Context) (*SystemInformation, error)
	GetSystemHealth(ctx context.Context) (*SystemHealth, error)
	GetSystemStats(ctx context.Context) (*SystemStats, error)
	GetLicensing(ctx context.Context) (*Licensing, error)
	ListLabs(ctx context.Context) ([]types.ServiceLab, error)
	DeleteLab(ctx context.Context, labID string) error
}

// Credentials authenticate against the Service API
type Credentials struct {
	Username string
	Password string
}

// Client talks to the Service API of a single worker. Token acquisition is
// lazy; a 401 triggers exactly one re-auth and one retry of the request.
type Client struct {
	base    string
	http    *http.Client
	creds   Credentials
	breaker *gobreaker.CircuitBreaker

	mu    sync.Mutex
	token string
}

// NewClient creates a client pinned to one worker's HTTPS endpoint
func NewClient(endpoint string, creds Credentials, timeout time.Duration, skipTLSVerify bool) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipTLSVerify}

	return &Client{
		base:  endpoint,
		creds: creds,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        endpoint,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
		}),
	}
}

// Authenticate obtains a bearer token from the Service
func (c *Client) Authenticate(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": c.creds.Username,
		"password": c.creds.Password,
	})
	if err != nil {
		return wrapErr("authenticate", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v0/authenticate", bytes.NewReader(body))
	if err != nil {
		return wrapErr("authenticate", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return wrapErr("authenticate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &IntegrationError{Kind: KindAuth, Op: "authenticate", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return &IntegrationError{Kind: KindProtocol, Op: "authenticate", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var token string
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return &IntegrationError{Kind: KindProtocol, Op: "authenticate", Err: err}
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// GetSystemInformation fetches version and readiness; no auth required
func (c *Client) GetSystemInformation(ctx context.Context) (*SystemInformation, error) {
	raw, err := c.get(ctx, "system_information", "/api/v0/system_information", false)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &IntegrationError{Kind: KindNotFound, Op: "system_information", Err: fmt.Errorf("endpoint missing")}
	}
	info := &SystemInformation{Raw: raw}
	if v, ok := raw["version"].(string); ok {
		info.Version = v
	}
	if r, ok := raw["ready"].(bool); ok {
		info.Ready = r
	}
	return info, nil
}

// GetSystemHealth fetches the health document; nil on 404 (older Services)
func (c *Client) GetSystemHealth(ctx context.Context) (*SystemHealth, error) {
	raw, err := c.get(ctx, "system_health", "/api/v0/system_health", true)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	health := &SystemHealth{Raw: raw}
	if v, ok := raw["valid"].(bool); ok {
		health.Valid = v
	}
	return health, nil
}

// GetSystemStats fetches aggregate counters; nil on 404 (older Services)
func (c *Client) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	raw, err := c.get(ctx, "system_stats", "/api/v0/system_stats", true)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	stats := &SystemStats{Raw: raw}
	if v, ok := raw["labs"].(float64); ok {
		stats.Labs = int(v)
	}
	if v, ok := raw["nodes"].(float64); ok {
		stats.Nodes = int(v)
	}
	if v, ok := raw["links"].(float64); ok {
		stats.Links = int(v)
	}
	return stats, nil
}

// GetLicensing fetches the licensing document; nil on 404 (older Services)
func (c *Client) GetLicensing(ctx context.Context) (*Licensing, error) {
	raw, err := c.get(ctx, "licensing", "/api/v0/licensing", true)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return &Licensing{Raw: raw}, nil
}

// ListLabs fetches the full labs inventory
func (c *Client) ListLabs(ctx context.Context) ([]types.ServiceLab, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/v0/labs?data=true", true)
	if err != nil {
		return nil, wrapErr("list_labs", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &IntegrationError{Kind: KindProtocol, Op: "list_labs", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var labs []types.ServiceLab
	if err := json.NewDecoder(resp.Body).Decode(&labs); err != nil {
		return nil, &IntegrationError{Kind: KindProtocol, Op: "list_labs", Err: err}
	}
	return labs, nil
}

// DeleteLab removes a lab on the Service
func (c *Client) DeleteLab(ctx context.Context, labID string) error {
	resp, err := c.request(ctx, http.MethodDelete, "/api/v0/labs/"+labID, true)
	if err != nil {
		return wrapErr("delete_lab", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &IntegrationError{Kind: KindNotFound, Op: "delete_lab", Err: fmt.Errorf("lab %s not found", labID)}
	case resp.StatusCode >= 300:
		return &IntegrationError{Kind: KindProtocol, Op: "delete_lab", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// get fetches a JSON object endpoint; optional authenticated endpoints
// return (nil, nil) on 404
func (c *Client) get(ctx context.Context, op, path string, auth bool) (map[string]interface{}, error) {
	resp, err := c.request(ctx, http.MethodGet, path, auth)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &IntegrationError{Kind: KindProtocol, Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &IntegrationError{Kind: KindProtocol, Op: op, Err: err}
	}
	return raw, nil
}

// request performs one call, acquiring the token lazily and re-authenticating
// exactly once on a 401
func (c *Client) request(ctx context.Context, method, path string, auth bool) (*http.Response, error) {
	if auth {
		if err := c.ensureToken(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.doRequest(ctx, method, path, auth)
	if err != nil {
		return nil, err
	}
	if auth && resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
		return c.doRequest(ctx, method, path, auth)
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, auth bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if auth {
		c.mu.Lock()
		token := c.token
		c.mu.Unlock()
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.send(req)
}

// send routes the request through the circuit breaker
func (c *Client) send(req *http.Request) (*http.Response, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return nil
	}
	return c.Authenticate(ctx)
}
