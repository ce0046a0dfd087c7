package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/progress"
)

type countingPublisher struct {
	closes int
}

func (p *countingPublisher) Publish(context.Context, any) (string, error) { return "", nil }

func (p *countingPublisher) Close() error {
	p.closes++
	return nil
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	pub := &countingPublisher{}
	a := &App{
		logger: zap.NewNop(),
		pub:    pub,
		hub:    progress.NewHub(progress.Config{}),
	}

	// serve tears down twice: once at the end of Run, once from the CLI
	// teardown hook. The second call must not touch the graph again.
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	require.Equal(t, 1, pub.closes)
}
