package imagecache

import (
	"context"

	"github.com/unkn0wn-root/imagecache/internal/util"
)

// Props is the consumer configuration of a View. Only Source is required.
// Nil callbacks are no-ops.
type Props struct {
	Source  Source
	DirName string // cache namespace; "" => DefaultDirName

	OnProgress func(loaded, total int64)
	OnLoad     func(File)
	OnError    func(error)
	OnLoadEnd  func()
	OnCancel   func()

	// Placeholder renders while not ready or loading; nil => ActivityIndicator{}.
	Placeholder func() Element
	// Children, when set, replaces default image rendering.
	Children func(resolved *Source) Element

	// Attrs are display properties forwarded to the image as-is.
	Attrs map[string]any
}

func (p Props) normalized() Props {
	p.DirName = util.Coalesce(p.DirName, DefaultDirName)
	return p
}

// Option configures View infrastructure.
type Option func(*View)

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(l Logger) Option {
	return func(v *View) {
		if l != nil {
			v.log = l
		}
	}
}

// WithHooks sets event hooks.
func WithHooks(h Hooks) Option {
	return func(v *View) {
		if h != nil {
			v.hooks = h
		}
	}
}

// WithIdentity overrides the minted lock identity.
func WithIdentity(id Identity) Option {
	return func(v *View) {
		if id != "" {
			v.id = id
		}
	}
}

// WithContext sets the context passed to Manager.Download and
// Manager.CancelDownload. A manager may tie a download to it: filecache
// detaches the View's request when ctx ends, the View then gets OnCancel and
// stops loading, while other requests for the same URL keep the transfer.
func WithContext(ctx context.Context) Option {
	return func(v *View) {
		if ctx != nil {
			v.ctx = ctx
		}
	}
}
