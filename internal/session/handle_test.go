package session

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-slackmap/internal/backend"
	"github.com/joeblew999/plat-slackmap/internal/mapengine"
)

// drain returns the queued commands without blocking.
func drain(h *SSEHandle) []Command {
	var out []Command
	for {
		select {
		case c := <-h.Commands():
			out = append(out, c)
		default:
			return out
		}
	}
}

func named(cmds []Command, name string) []Command {
	var out []Command
	for _, c := range cmds {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func TestClusterExpansionZoomResolve(t *testing.T) {
	h := NewSSEHandle(8, time.Second)

	type result struct {
		zoom float64
		err  error
	}
	done := make(chan result, 1)
	go func() {
		z, err := h.ClusterExpansionZoom(context.Background(), "slacklineMapCluster", 7)
		done <- result{z, err}
	}()

	cmd := <-h.Commands()
	require.Equal(t, CmdClusterExpansionZoom, cmd.Name)
	args := cmd.Args.(map[string]any)
	assert.Equal(t, int64(7), args["clusterId"])

	require.NoError(t, h.Resolve(Reply{RequestID: args["requestId"].(string), Zoom: 9.5}))
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, 9.5, r.zoom)

	assert.ErrorIs(t, h.Resolve(Reply{RequestID: args["requestId"].(string)}), ErrUnknownRequest)
}

func TestClusterExpansionZoomReplyError(t *testing.T) {
	h := NewSSEHandle(8, time.Second)
	done := make(chan error, 1)
	go func() {
		_, err := h.ClusterExpansionZoom(context.Background(), "src", 1)
		done <- err
	}()
	cmd := <-h.Commands()
	id := cmd.Args.(map[string]any)["requestId"].(string)
	require.NoError(t, h.Resolve(Reply{RequestID: id, Error: "no such cluster"}))
	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such cluster")
}

func TestClusterExpansionZoomTimeout(t *testing.T) {
	h := NewSSEHandle(8, 20*time.Millisecond)
	_, err := h.ClusterExpansionZoom(context.Background(), "src", 1)
	assert.ErrorIs(t, err, ErrReplyTimeout)
}

func TestCloseFailsPendingRequests(t *testing.T) {
	h := NewSSEHandle(8, time.Minute)
	done := make(chan error, 1)
	go func() {
		_, err := h.ClusterExpansionZoom(context.Background(), "src", 1)
		done <- err
	}()
	<-h.Commands()
	h.Close()
	assert.ErrorIs(t, <-done, mapengine.ErrClosed)

	assert.ErrorIs(t, h.FlyTo(mapengine.CameraOptions{}), mapengine.ErrClosed)
	h.Close()
	select {
	case <-h.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestSendQueueFull(t *testing.T) {
	h := NewSSEHandle(1, time.Second)
	require.NoError(t, h.ClosePopup())
	assert.ErrorIs(t, h.ClosePopup(), ErrQueueFull)

	// Notifications are dropped silently.
	h.Notify(context.Background(), backend.Notification{Message: "lost"})
	assert.Len(t, drain(h), 1)
}

func TestPopupCarriesHTML(t *testing.T) {
	h := NewSSEHandle(4, time.Second)
	require.NoError(t, h.Popup("<b>hi</b>", orb.Point{1, 2}))
	require.NoError(t, h.ReplaceURL("map", "1,2,3"))

	cmds := drain(h)
	require.Len(t, cmds, 2)
	assert.Equal(t, "<b>hi</b>", cmds[0].HTML)
	assert.Equal(t, map[string]any{"param": "map", "value": "1,2,3"}, cmds[1].Args)
}
