package mapengine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderStateTable(t *testing.T) {
	r := NewRecorder()
	ref := FeatureRef{Source: "lines", ID: "1"}

	require.NoError(t, r.SetFeatureState(ref, FeatureState{StateHover: true}))
	require.NoError(t, r.SetFeatureState(ref, FeatureState{StateSelected: true}))
	assert.Equal(t, FeatureState{StateHover: true, StateSelected: true}, r.State(ref))

	require.NoError(t, r.RemoveFeatureState(ref, StateHover))
	assert.Equal(t, FeatureState{StateSelected: true}, r.State(ref))
	assert.Equal(t, []FeatureRef{ref}, r.RefsWith(StateSelected))
	assert.Empty(t, r.RefsWith(StateHover))
	assert.Len(t, r.CallsTo("SetFeatureState"), 2)
}

func TestRecorderFailures(t *testing.T) {
	r := NewRecorder()
	r.FailStates = true
	assert.Error(t, r.SetFeatureState(FeatureRef{Source: "x", ID: "1"}, FeatureState{StateHover: true}))

	r.FailStates = false
	r.PanicStates = true
	assert.Panics(t, func() { _ = r.RemoveFeatureState(FeatureRef{Source: "x", ID: "1"}, StateHover) })
}

func TestRecorderExpansion(t *testing.T) {
	r := NewRecorder()
	r.ExpansionZoom = 7
	z, err := r.ClusterExpansionZoom(context.Background(), "slacklineMapCluster", 3)
	require.NoError(t, err)
	assert.Equal(t, 7.0, z)

	r.ExpansionErr = errors.New("no such cluster")
	_, err = r.ClusterExpansionZoom(context.Background(), "slacklineMapCluster", 3)
	assert.Error(t, err)
}

func TestClusterID(t *testing.T) {
	id, ok := (&RenderedFeature{Properties: map[string]any{"cluster_id": 0.0}}).ClusterID()
	assert.True(t, ok)
	assert.Zero(t, id)

	_, ok = (&RenderedFeature{Properties: map[string]any{"id": "1"}}).ClusterID()
	assert.False(t, ok)

	var nilFeature *RenderedFeature
	_, ok = nilFeature.ClusterID()
	assert.False(t, ok)
}
