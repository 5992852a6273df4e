package mapengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
)

// Call is one recorded MapHandle invocation.
type Call struct {
	Method  string
	Ref     FeatureRef
	State   FeatureState
	Key     string
	Camera  CameraOptions
	Bound   orb.Bound
	Fit     FitOptions
	Cursor  Cursor
	Source  string
	Cluster int64
}

// Recorder is an in-memory MapHandle. It keeps the feature-state table the
// engine would hold and records every call.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	states map[FeatureRef]FeatureState
	zoom   float64

	// ExpansionZoom and ExpansionErr answer ClusterExpansionZoom.
	ExpansionZoom float64
	ExpansionErr  error
	// FailStates makes feature-state mutations return an error.
	FailStates bool
	// PanicStates makes feature-state mutations panic.
	PanicStates bool
	// PanicCamera makes FlyTo and EaseTo panic.
	PanicCamera bool
}

// NewRecorder returns an empty Recorder at zoom 0.
func NewRecorder() *Recorder {
	return &Recorder{states: make(map[FeatureRef]FeatureState)}
}

func (r *Recorder) record(c Call) {
	r.calls = append(r.calls, c)
}

func (r *Recorder) SetFeatureState(ref FeatureRef, state FeatureState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "SetFeatureState", Ref: ref, State: state})
	if r.PanicStates {
		panic("feature state mutation on removed source")
	}
	if r.FailStates {
		return fmt.Errorf("source %q not found", ref.Source)
	}
	cur := r.states[ref]
	if cur == nil {
		cur = FeatureState{}
		r.states[ref] = cur
	}
	for k, v := range state {
		cur[k] = v
	}
	return nil
}

func (r *Recorder) RemoveFeatureState(ref FeatureRef, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "RemoveFeatureState", Ref: ref, Key: key})
	if r.PanicStates {
		panic("feature state mutation on removed source")
	}
	if r.FailStates {
		return fmt.Errorf("source %q not found", ref.Source)
	}
	if cur := r.states[ref]; cur != nil {
		delete(cur, key)
		if len(cur) == 0 {
			delete(r.states, ref)
		}
	}
	return nil
}

func (r *Recorder) FlyTo(opts CameraOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "FlyTo", Camera: opts})
	if r.PanicCamera {
		panic("camera moved on a removed map")
	}
	if opts.Zoom != nil {
		r.zoom = *opts.Zoom
	}
	return nil
}

func (r *Recorder) EaseTo(opts CameraOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "EaseTo", Camera: opts})
	if r.PanicCamera {
		panic("camera moved on a removed map")
	}
	if opts.Zoom != nil {
		r.zoom = *opts.Zoom
	}
	return nil
}

func (r *Recorder) FitBounds(b orb.Bound, opts FitOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "FitBounds", Bound: b, Fit: opts})
	return nil
}

func (r *Recorder) ClusterExpansionZoom(ctx context.Context, sourceID string, clusterID int64) (float64, error) {
	r.mu.Lock()
	r.record(Call{Method: "ClusterExpansionZoom", Source: sourceID, Cluster: clusterID})
	zoom, err := r.ExpansionZoom, r.ExpansionErr
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return zoom, err
}

func (r *Recorder) SetCursor(c Cursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "SetCursor", Cursor: c})
	return nil
}

func (r *Recorder) Zoom() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoom
}

// SetZoom changes the reported zoom.
func (r *Recorder) SetZoom(z float64) {
	r.mu.Lock()
	r.zoom = z
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns the recorded calls of one method.
func (r *Recorder) CallsTo(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets the recorded calls but keeps the state table.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// State returns a copy of the state held for ref.
func (r *Recorder) State(ref FeatureRef) FeatureState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := FeatureState{}
	for k, v := range r.states[ref] {
		out[k] = v
	}
	return out
}

// RefsWith lists the refs whose state has key set to true.
func (r *Recorder) RefsWith(key string) []FeatureRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FeatureRef
	for ref, st := range r.states {
		if v, _ := st[key].(bool); v {
			out = append(out, ref)
		}
	}
	return out
}

var _ MapHandle = (*Recorder)(nil)
