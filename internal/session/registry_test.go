package session

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-slackmap/internal/backend"
	"github.com/joeblew999/plat-slackmap/internal/geo"
)

func TestRegistryLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	deps := testDeps(t)
	deps.Publisher = pub
	r := NewRegistry(deps)

	s, err := r.Create(context.Background(), KindWorld, Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, r.Close(s.ID()))
	assert.Equal(t, 0, r.Len())
	assert.ErrorIs(t, r.Close(s.ID()), ErrNotFound)
	_, err = r.Get(s.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	select {
	case <-s.Handle().Done():
	default:
		t.Fatal("closed session keeps its stream open")
	}
	assert.Equal(t, []string{"created", "closed"}, pub.actions())
}

func TestRegistryCreateErrors(t *testing.T) {
	r := NewRegistry(testDeps(t))
	ctx := context.Background()

	_, err := r.Create(ctx, Kind("globe"), Params{})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = r.Create(ctx, KindFocused, Params{})
	assert.ErrorIs(t, err, geo.ErrEmptyGeometry)

	_, err = r.Create(ctx, KindFocused, Params{FeatureID: "42", FeatureType: geo.TypeLine})
	assert.ErrorIs(t, err, ErrNoBackend)

	r.SetRecords(&fakeRecords{})
	_, err = r.Create(ctx, KindDrawable, Params{FeatureID: "42", FeatureType: geo.TypeManagedArea})
	assert.ErrorIs(t, err, backend.ErrUnknownCategory)

	assert.Equal(t, 0, r.Len())
}

func TestRegistryFetchesFocusedGeometry(t *testing.T) {
	r := NewRegistry(testDeps(t))
	r.SetRecords(&fakeRecords{fc: geojson.NewFeatureCollection().Append(lineFeature("42"))})

	s, err := r.Create(context.Background(), KindFocused, Params{FeatureID: "42", FeatureType: geo.TypeLine})
	require.NoError(t, err)
	defer r.Shutdown()

	_, ok := s.Snapshot().Composition.Source("focused")
	assert.True(t, ok)
}

func TestRegistrySweep(t *testing.T) {
	r := NewRegistry(testDeps(t))
	ctx := context.Background()
	_, err := r.Create(ctx, KindWorld, Params{})
	require.NoError(t, err)
	_, err = r.Create(ctx, KindCommunity, Params{})
	require.NoError(t, err)

	assert.Equal(t, 0, r.Sweep(time.Now()))
	assert.Equal(t, 2, r.Sweep(time.Now().Add(time.Hour)))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRunShutsDown(t *testing.T) {
	r := NewRegistry(testDeps(t))
	s, err := r.Create(context.Background(), KindWorld, Params{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 0, r.Len())
	<-s.Handle().Done()
}

func TestRegistryNotifyRoutesToSession(t *testing.T) {
	r := NewRegistry(testDeps(t))
	a, err := r.Create(context.Background(), KindWorld, Params{})
	require.NoError(t, err)
	b, err := r.Create(context.Background(), KindWorld, Params{})
	require.NoError(t, err)
	defer r.Shutdown()

	n := backend.Notification{Message: "Saved", Severity: backend.SeveritySuccess}
	r.Notify(ContextWithSession(context.Background(), b.ID()), n)
	r.Notify(context.Background(), n)
	r.Notify(ContextWithSession(context.Background(), "gone"), n)

	assert.Empty(t, drain(a.Handle()))
	notes := named(drain(b.Handle()), CmdNotify)
	require.Len(t, notes, 1)
	assert.Equal(t, n, notes[0].Args)
}

func TestSessionContext(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)
	_, ok = SessionFromContext(ContextWithSession(context.Background(), ""))
	assert.False(t, ok)

	id, ok := SessionFromContext(ContextWithSession(context.Background(), "s1"))
	assert.True(t, ok)
	assert.Equal(t, "s1", id)
}
