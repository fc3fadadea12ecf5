package service

import (
	"fmt"
	"time"

	"github.com/labfleet/labfleet/pkg/types"
	gocache "github.com/patrickmn/go-cache"
)

// Factory produces per-worker Service clients pinned to the worker's HTTPS
// endpoint. Clients (and their cached tokens) are reused per endpoint and
// evicted after an idle TTL so terminated workers do not pin memory.
type Factory interface {
	ClientFor(worker *types.Worker) (API, error)
}

// Config tunes the clients a factory hands out
type Config struct {
	Credentials   Credentials
	Timeout       time.Duration
	SkipTLSVerify bool
}

type factory struct {
	cfg     Config
	clients *gocache.Cache // endpoint -> *Client
}

// NewFactory creates the default client factory
func NewFactory(cfg Config) Factory {
	return &factory{
		cfg:     cfg,
		clients: gocache.New(30*time.Minute, 10*time.Minute),
	}
}

// Endpoint derives the Service base URL for a worker
func Endpoint(worker *types.Worker) (string, error) {
	addr := worker.PublicAddress
	if addr == "" {
		addr = worker.PrivateAddress
	}
	if addr == "" {
		return "", fmt.Errorf("worker %s has no reachable address", worker.ID)
	}
	return "https://" + addr, nil
}

func (f *factory) ClientFor(worker *types.Worker) (API, error) {
	endpoint, err := Endpoint(worker)
	if err != nil {
		return nil, err
	}
	if c, ok := f.clients.Get(endpoint); ok {
		return c.(*Client), nil
	}
	client := NewClient(endpoint, f.cfg.Credentials, f.cfg.Timeout, f.cfg.SkipTLSVerify)
	f.clients.SetDefault(endpoint, client)
	return client, nil
}
