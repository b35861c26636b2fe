package filecache

import (
	"time"

	"resty.dev/v3"

	"github.com/unkn0wn-root/imagecache"
	"github.com/unkn0wn-root/imagecache/codec"
	gen "github.com/unkn0wn-root/imagecache/genstore"
	pr "github.com/unkn0wn-root/imagecache/provider"
)

const (
	defaultMaxSize         = 512 << 20
	defaultClearingRatio   = 0.1
	defaultMaxRecordSize   = 64 << 10
	defaultScanConcurrency = 8
	defaultLockRetry       = 50 * time.Millisecond
	defaultGenSweep        = time.Hour
	defaultGenRetention    = 30 * 24 * time.Hour
)

// Options configure a Cache. Only Root is required.
type Options struct {
	// Required
	Root string // cache directory; namespaces are subdirectories

	MaxSize         int64             // bytes kept on disk before pruning; 0 => 512 MiB
	ClearingRatio   float64           // share of MaxSize freed by a prune; 0 => 0.1
	Provider        pr.Provider       // record store; nil => in-process ristretto
	Codec           string            // record codec name (see package codec); "" => msgpack
	MaxRecordSize   int               // refuse to decode larger records; 0 => 64 KiB
	RecordTTL       time.Duration     // record expiry in the provider; 0 => none
	GenStore        gen.Store         // nil => in-process genstore.Local
	GenRetention    time.Duration     // Local only; 0 => 30d
	Client          *resty.Client     // nil => resty.New()
	Timeout         time.Duration     // per transfer; 0 => none
	ScanConcurrency int               // parallel namespace scans in Load/RemoveAll; 0 => 8
	LockRetry       time.Duration     // flock polling interval; 0 => 50ms
	Logger          imagecache.Logger // nil => NopLogger
	Hooks           imagecache.Hooks  // nil => NopHooks
}

func (o Options) codecName() string {
	if o.Codec == "" {
		return codec.NameMsgpack
	}
	return o.Codec
}
