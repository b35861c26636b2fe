package imagecache

import (
	"context"
	"net/http"
)

// View resolves Props.Source through a Manager and tracks what to display.
//
// All transitions run on the View's own event loop; manager callbacks are
// posted into it from whatever goroutine they fire on. Consumer callbacks
// are delivered in order on a separate queue, so they may call View methods.
type View struct {
	m     Manager
	id    Identity
	ctx   context.Context
	log   Logger
	hooks Hooks

	events *serial // state machine
	notify *serial // consumer callbacks

	// owned by the events goroutine
	props     Props
	state     State
	gen       uint64
	mounted   bool
	unmounted bool
}

// New creates a View for p. Nothing is resolved before Mount.
func New(m Manager, p Props, opts ...Option) *View {
	v := &View{
		m:      m,
		id:     NewIdentity(),
		ctx:    context.Background(),
		log:    NopLogger{},
		hooks:  NopHooks{},
		events: newSerial(),
		notify: newSerial(),
		props:  p.normalized(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.state.Ready = m.IsReady()
	return v
}

// ID returns the lock identity of v.
func (v *View) ID() Identity { return v.id }

// Mount starts resolution, or defers it until the manager is ready.
func (v *View) Mount() {
	v.events.do(v.mount)
}

// Update replaces the props. Resolution re-runs when the source changed per
// Manager.Equal or the namespace changed.
func (v *View) Update(p Props) {
	p = p.normalized()
	v.events.do(func() { v.update(p) })
}

// Unmount releases the identity's lock and stops the View. Idempotent.
// Queued consumer callbacks are still delivered.
func (v *View) Unmount() {
	v.events.do(v.unmount)
	v.events.close()
	v.events.wait()
	v.notify.close()
}

// CancelDownload asks the manager to cancel the download of the current
// source. No-op for non-remote sources. State changes only when the manager
// reports the cancellation.
func (v *View) CancelDownload() {
	v.events.do(v.cancelDownload)
}

// State returns a snapshot of the display state.
func (v *View) State() State {
	var s State
	if !v.events.do(func() { s = v.snapshot() }) {
		// unmounted: once the loop exits the state is frozen
		v.events.wait()
		return v.snapshot()
	}
	return s
}

// Render returns the placeholder or the image for the current state.
// Placeholder and Children run on the caller's goroutine.
func (v *View) Render() Element {
	var (
		p Props
		s State
	)
	if !v.events.do(func() { p, s = v.props, v.snapshot() }) {
		v.events.wait()
		p, s = v.props, v.snapshot()
	}
	return render(p, s)
}

func (v *View) snapshot() State {
	s := v.state
	if s.Resolved != nil {
		r := s.Resolved.Clone()
		s.Resolved = &r
	}
	return s
}

func (v *View) mount() {
	if v.mounted || v.unmounted {
		return
	}
	v.mounted = true
	if v.m.IsReady() {
		v.state.Ready = true
		v.resolve()
		return
	}
	v.m.OnReady(func() {
		v.events.post(v.onReady)
	})
}

func (v *View) onReady() {
	if v.unmounted {
		v.hooks.StaleCallback(v.id, "ready")
		return
	}
	if v.state.Ready {
		return
	}
	v.state.Ready = true
	v.resolve()
}

func (v *View) update(p Props) {
	if v.unmounted {
		return
	}
	prev := v.props
	v.props = p
	if !v.mounted || !v.state.Ready || !v.m.IsReady() {
		return
	}
	if !v.m.Equal(p.Source, prev.Source) || p.DirName != prev.DirName {
		v.resolve()
	}
}

func (v *View) unmount() {
	if v.unmounted {
		return
	}
	v.unmounted = true
	v.gen++
	v.m.Unlock(v.id)
	v.log.Debug("view unmounted; lock released", Fields{"id": v.id})
}

func (v *View) cancelDownload() {
	if v.unmounted {
		return
	}
	src := v.props.Source
	if !v.m.IsInternetURL(src.URI) {
		return
	}
	if err := v.m.CancelDownload(v.ctx, src.URI); err != nil {
		v.emitError(err)
	}
}

// resolve runs one resolution attempt for the current props.
func (v *View) resolve() {
	v.gen++
	gen := v.gen
	src := v.props.Source
	dir := v.props.DirName

	if !v.m.IsInternetURL(src.URI) {
		r := src.Clone()
		v.state.Resolved = &r
		v.state.Loading = false
		v.m.Unlock(v.id)
		v.log.Debug("resolved local source", Fields{"id": v.id, "uri": src.URI})
		return
	}

	path := v.m.Path(src.URI, dir)
	if v.m.IsRemoving(path) {
		v.hooks.RemovalWait(v.id, path)
		v.log.Debug("waiting for entry removal", Fields{"id": v.id, "path": path})
		v.m.OnRemoved(path, func(err error) {
			v.events.post(func() { v.onRemoved(gen, path, err) })
		})
		return
	}

	if v.m.Exists(path) {
		v.m.Lock(v.id, path)
		r := v.m.Source(path)
		v.state.Resolved = &r
		v.state.Loading = false
		v.log.Debug("resolved cached entry", Fields{"id": v.id, "path": path})
		return
	}

	method := src.Method
	if method == "" {
		method = http.MethodGet
	}
	c := src.Clone()
	req := DownloadRequest{
		URL:     c.URI,
		Method:  method,
		Headers: c.Headers,
		Body:    c.Body,
		DirName: dir,
		OnProgress: func(loaded, total int64) {
			v.events.post(func() { v.onProgress(gen, loaded, total) })
		},
		OnLoad: func(f File) {
			v.events.post(func() { v.onLoad(gen, f) })
		},
		OnError: func(err error) {
			v.events.post(func() { v.onError(gen, err) })
		},
		OnCancel: func() {
			v.events.post(func() { v.onCancel(gen) })
		},
		OnLoadEnd: func() {
			v.events.post(func() { v.onLoadEnd(gen) })
		},
	}
	v.state.Loading = true
	v.log.Debug("downloading", Fields{"id": v.id, "url": src.URI, "dir": dir})
	if err := v.m.Download(v.ctx, req); err != nil {
		v.log.Warn("download setup failed", Fields{"id": v.id, "url": src.URI, "err": err})
		v.emitError(err)
		v.state.Loading = false
	}
}

// stale reports whether a callback captured gen belongs to a superseded
// attempt; stale callbacks are dropped.
func (v *View) stale(gen uint64, event string) bool {
	if v.unmounted || gen != v.gen {
		v.hooks.StaleCallback(v.id, event)
		v.log.Debug("dropped stale callback", Fields{"id": v.id, "event": event, "gen": gen, "current": v.gen})
		return true
	}
	return false
}

func (v *View) onRemoved(gen uint64, path string, err error) {
	if v.stale(gen, "removed") {
		return
	}
	if err != nil {
		v.log.Debug("entry removal finished with error; re-resolving", Fields{"id": v.id, "path": path, "err": err})
	}
	v.resolve()
}

func (v *View) onProgress(gen uint64, loaded, total int64) {
	if v.stale(gen, "progress") {
		return
	}
	if fn := v.props.OnProgress; fn != nil {
		v.notify.post(func() { fn(loaded, total) })
	}
}

func (v *View) onLoad(gen uint64, f File) {
	if v.stale(gen, "load") {
		return
	}
	v.m.Lock(v.id, f.Path)
	r := v.m.Source(f.Path)
	v.state.Resolved = &r
	v.log.Debug("download loaded", Fields{"id": v.id, "path": f.Path, "size": f.Size})
	if fn := v.props.OnLoad; fn != nil {
		v.notify.post(func() { fn(f) })
	}
}

func (v *View) onError(gen uint64, err error) {
	if v.stale(gen, "error") {
		return
	}
	v.state.Loading = false
	v.log.Warn("download failed", Fields{"id": v.id, "url": v.props.Source.URI, "err": err})
	v.emitError(err)
}

func (v *View) onCancel(gen uint64) {
	if v.stale(gen, "cancel") {
		return
	}
	v.state.Loading = false
	if fn := v.props.OnCancel; fn != nil {
		v.notify.post(fn)
	}
}

func (v *View) onLoadEnd(gen uint64) {
	if v.stale(gen, "load_end") {
		return
	}
	v.state.Loading = false
	if fn := v.props.OnLoadEnd; fn != nil {
		v.notify.post(fn)
	}
}

func (v *View) emitError(err error) {
	if fn := v.props.OnError; fn != nil {
		v.notify.post(func() { fn(err) })
	}
}
