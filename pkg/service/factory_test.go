package service

import (
	"testing"
	"time"

	"github.com/labfleet/labfleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workerWithAddrs(pub, priv string) *types.Worker {
	return &types.Worker{ID: "w-1", PublicAddress: pub, PrivateAddress: priv}
}

func TestFactoryReusesClientPerEndpoint(t *testing.T) {
	f := NewFactory(Config{Credentials: Credentials{Username: "u", Password: "p"}, Timeout: time.Second})

	c1, err := f.ClientFor(workerWithAddrs("1.2.3.4", ""))
	require.NoError(t, err)
	c2, err := f.ClientFor(workerWithAddrs("1.2.3.4", ""))
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	c3, err := f.ClientFor(workerWithAddrs("5.6.7.8", ""))
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)
}

func TestFactoryRejectsAddresslessWorker(t *testing.T) {
	f := NewFactory(Config{})
	_, err := f.ClientFor(workerWithAddrs("", ""))
	assert.Error(t, err)
}
