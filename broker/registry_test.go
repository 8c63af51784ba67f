package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqshim/broker"
	"github.com/miladsoleymani/mqshim/core"
	"github.com/miladsoleymani/mqshim/internal/mock"
)

func TestRegistry(t *testing.T) {
	var got broker.Config
	mb := mock.NewBroker()
	broker.Register("test-memory", func(cfg broker.Config) (core.Dialer, error) {
		got = cfg
		return mb, nil
	})

	d, err := broker.Create("test-memory", broker.Config{Brokers: []string{"localhost:5672"}, Username: "guest"})
	require.NoError(t, err)
	assert.Equal(t, "guest", got.Username)
	assert.Contains(t, broker.Names(), "test-memory")

	_, err = d.Dial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mb.Dials())
}

func TestRegistry_Unknown(t *testing.T) {
	_, err := broker.Create("carrier-pigeon", broker.Config{})
	assert.ErrorContains(t, err, "unknown broker")
}

func TestConfig_Timeout(t *testing.T) {
	assert.Equal(t, broker.DefaultConnectionTimeout, broker.Config{}.Timeout())
	assert.Equal(t, time.Second, broker.Config{ConnectionTimeout: time.Second}.Timeout())
}
