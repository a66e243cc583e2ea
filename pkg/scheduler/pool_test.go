package scheduler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybscloud/spiral/pkg/scheduler"
	"github.com/hybscloud/spiral/pkg/stepbudget"
	"github.com/hybscloud/spiral/pkg/value"
)

func newPool(maxInFlight int) *scheduler.Pool {
	return scheduler.New(stepbudget.New(1_000_000), maxInFlight)
}

func TestPoolParEmptyBranchesReturnsEmptyList(t *testing.T) {
	p := newPool(4)
	v, err := p.Par(context.Background(), nil)
	require.NoError(t, err)
	lst, ok := v.AsList()
	require.True(t, ok)
	assert.Empty(t, lst)
}

func TestPoolParJoinsInOriginalOrder(t *testing.T) {
	p := newPool(4)
	branches := []func(ctx context.Context) (value.Value, error){
		func(ctx context.Context) (value.Value, error) { return value.Int(1), nil },
		func(ctx context.Context) (value.Value, error) { return value.Int(2), nil },
		func(ctx context.Context) (value.Value, error) { return value.Int(3), nil },
	}
	v, err := p.Par(context.Background(), branches)
	require.NoError(t, err)
	lst, ok := v.AsList()
	require.True(t, ok)
	require.Len(t, lst, 3)
	for idx, want := range []int64{1, 2, 3} {
		got, _ := lst[idx].AsInt()
		assert.Equal(t, want, got)
	}
}

func TestPoolParFirstErrorAborts(t *testing.T) {
	p := newPool(4)
	boom := errors.New("boom")
	branches := []func(ctx context.Context) (value.Value, error){
		func(ctx context.Context) (value.Value, error) { return value.Value{}, boom },
		func(ctx context.Context) (value.Value, error) {
			<-ctx.Done()
			return value.Value{}, ctx.Err()
		},
	}
	_, err := p.Par(context.Background(), branches)
	require.Error(t, err)
}

func TestPoolSpawnAwaitRoundTrips(t *testing.T) {
	p := newPool(4)
	ctx := context.Background()
	future := p.Spawn(ctx, func(ctx context.Context) (value.Value, error) {
		return value.String("done"), nil
	})
	v, err := p.Await(ctx, future)
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "done", s)
}

func TestPoolRaceReturnsFirstAndCancelsRest(t *testing.T) {
	p := newPool(4)
	started := make(chan struct{})
	branches := []func(ctx context.Context) (value.Value, error){
		func(ctx context.Context) (value.Value, error) { return value.Int(1), nil },
		func(ctx context.Context) (value.Value, error) {
			close(started)
			<-ctx.Done()
			return value.Value{}, ctx.Err()
		},
	}
	v, err := p.Race(context.Background(), branches)
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.Equal(t, int64(1), i)
}

func TestPoolRaceRequiresAtLeastOneBranch(t *testing.T) {
	p := newPool(4)
	_, err := p.Race(context.Background(), nil)
	assert.Error(t, err)
}
