package resourcelock_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/taskplan/internal/resourcelock"
)

func TestDeclare_RejectsNonPositiveConcurrency(t *testing.T) {
	r := resourcelock.NewRegistry()
	require.Error(t, r.Declare("net", 0))
	require.Error(t, r.Declare("net", -1))
}

func TestLock_ProjectIsExclusive(t *testing.T) {
	r := resourcelock.NewRegistry()
	a := resourcelock.NewLock(r, "frontend", nil)
	b := resourcelock.NewLock(r, "frontend", nil)

	require.True(t, a.TryAcquire())
	require.False(t, b.TryAcquire(), "same project lock should not be acquired twice")

	a.Release()
	require.True(t, b.TryAcquire(), "releasing should free the project lock")
}

func TestLock_DifferentProjectsDoNotConflict(t *testing.T) {
	r := resourcelock.NewRegistry()
	a := resourcelock.NewLock(r, "frontend", nil)
	b := resourcelock.NewLock(r, "backend", nil)

	require.True(t, a.TryAcquire())
	require.True(t, b.TryAcquire())
}

func TestLock_IsolatedNodeHasNoProjectLock(t *testing.T) {
	r := resourcelock.NewRegistry()
	a := resourcelock.NewLock(r, "", nil)
	b := resourcelock.NewLock(r, "", nil)

	require.True(t, a.TryAcquire())
	require.True(t, b.TryAcquire(), "empty project name means isolated, no exclusivity")
}

func TestLock_ResourceConcurrencyBound(t *testing.T) {
	r := resourcelock.NewRegistry()
	require.NoError(t, r.Declare("network", 2))

	a := resourcelock.NewLock(r, "", []string{"network"})
	b := resourcelock.NewLock(r, "", []string{"network"})
	c := resourcelock.NewLock(r, "", []string{"network"})

	require.True(t, a.TryAcquire())
	require.True(t, b.TryAcquire())
	require.False(t, c.TryAcquire(), "third lock should exceed concurrency 2")

	b.Release()
	require.True(t, c.TryAcquire())
}

func TestLock_UndeclaredResourceDefaultsToConcurrencyOne(t *testing.T) {
	r := resourcelock.NewRegistry()
	a := resourcelock.NewLock(r, "", []string{"db"})
	b := resourcelock.NewLock(r, "", []string{"db"})

	require.True(t, a.TryAcquire())
	require.False(t, b.TryAcquire())
}

func TestLock_AllOrNothing(t *testing.T) {
	r := resourcelock.NewRegistry()
	require.NoError(t, r.Declare("scarce", 1))

	holder := resourcelock.NewLock(r, "", []string{"scarce"})
	require.True(t, holder.TryAcquire())

	// plentiful is available but scarce is not; the whole lock must fail and
	// release anything it grabbed along the way.
	blocked := resourcelock.NewLock(r, "", []string{"plentiful", "scarce"})
	require.False(t, blocked.TryAcquire())

	// plentiful must have been released by the failed attempt above.
	probe := resourcelock.NewLock(r, "", []string{"plentiful"})
	require.True(t, probe.TryAcquire())
}
