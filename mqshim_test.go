package mqshim_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqshim"
	"github.com/miladsoleymani/mqshim/core"
	"github.com/miladsoleymani/mqshim/internal/mock"
)

func TestWithService(t *testing.T) {
	mb := mock.NewBroker()

	err := mqshim.WithService(context.Background(), mb, func(ctx context.Context, s *mqshim.Service) error {
		return s.PublishText(ctx, "testqueue", "hello")
	})
	require.NoError(t, err)

	require.Len(t, mb.Published(), 1)
	assert.Equal(t, 1, mb.ConnectionCloses())
}

func TestNew_ErrorKinds(t *testing.T) {
	mb := mock.NewBroker()
	mb.DialErr = errors.New("connection refused")

	s := mqshim.New(mb)
	defer s.Close()

	err := s.PublishText(context.Background(), "testqueue", "hello")
	var e *mqshim.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, core.KindConnection, e.Kind)
	assert.Equal(t, core.StateFailed, s.State())
}
