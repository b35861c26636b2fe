package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/imagecache"
	"github.com/unkn0wn-root/imagecache/filecache"
	"github.com/unkn0wn-root/imagecache/genstore"
	asynchook "github.com/unkn0wn-root/imagecache/hooks/async"
	logrlog "github.com/unkn0wn-root/imagecache/log/logr"
	logruslog "github.com/unkn0wn-root/imagecache/log/logrus"
	sloglog "github.com/unkn0wn-root/imagecache/log/slog"
	zaplog "github.com/unkn0wn-root/imagecache/log/zap"
	"github.com/unkn0wn-root/imagecache/provider"
	"github.com/unkn0wn-root/imagecache/provider/bigcache"
	"github.com/unkn0wn-root/imagecache/provider/redis"
	"github.com/unkn0wn-root/imagecache/provider/ristretto"
	"github.com/unkn0wn-root/imagecache/sloghooks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type headerFlag map[string]string

func (h headerFlag) String() string { return fmt.Sprint(map[string]string(h)) }

func (h headerFlag) Set(v string) error {
	k, val, ok := strings.Cut(v, ":")
	if !ok {
		return fmt.Errorf("header must be Name: value")
	}
	h[strings.TrimSpace(k)] = strings.TrimSpace(val)
	return nil
}

func run() error {
	headers := headerFlag{}
	url := flag.String("url", "", "Image URL or local path to resolve (optional)")
	root := flag.String("root", defaultRoot(), "Cache root directory")
	dir := flag.String("dir", imagecache.DefaultDirName, "Cache namespace")
	method := flag.String("method", "", "HTTP method (defaults to GET)")
	flag.Var(headers, "header", "Request header 'Name: value' (repeatable)")
	store := flag.String("provider", "ristretto", "Record store: ristretto, bigcache or redis")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis address for -provider=redis")
	codecName := flag.String("codec", "", "Record codec: msgpack, json, cbor or protobuf")
	loggerName := flag.String("logger", "slog", "Logger: slog, logr, logrus or zap")
	maxSize := flag.Int64("max-size", 0, "Cache budget in bytes (optional)")
	ratio := flag.Float64("clearing-ratio", 0, "Share of the budget freed by a prune (optional)")
	timeout := flag.Duration("timeout", 0, "Per-download timeout (optional)")
	cancelAfter := flag.Duration("cancel-after", 0, "Cancel the download after this long (optional)")
	prune := flag.Bool("prune", false, "Prune the cache and exit")
	remove := flag.Bool("remove", false, "Remove the entry of -url and exit")
	removeAll := flag.Bool("remove-all", false, "Remove every cached entry and exit")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	log, err := newLogger(*loggerName, handler, *verbose)
	if err != nil {
		return err
	}
	hooks := asynchook.New(sloghooks.New(slog.New(handler), sloghooks.Options{StaleEvery: 10}), 1, 256)
	defer hooks.Close()

	opts := filecache.Options{
		Root:          *root,
		MaxSize:       *maxSize,
		ClearingRatio: *ratio,
		Codec:         *codecName,
		Timeout:       *timeout,
		Logger:        log,
		Hooks:         hooks,
	}
	if err := withStores(&opts, *store, *redisAddr); err != nil {
		return err
	}

	cache, err := filecache.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.Close(cctx); err != nil {
			fmt.Fprintf(os.Stderr, "close cache: %v\n", err)
		}
	}()

	if err := cache.Load(ctx); err != nil {
		return fmt.Errorf("failed to load cache: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Cache %s: %d entries, %d/%d bytes\n", cache.Root(), cache.Len(), cache.TotalSize(), cache.MaxSize())

	switch {
	case *removeAll:
		if err := cache.RemoveAll(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Cache cleared")
		return nil
	case *remove:
		if *url == "" {
			return fmt.Errorf("--remove needs --url")
		}
		if err := cache.Remove(ctx, *url, *dir); err != nil {
			return fmt.Errorf("failed to remove entry: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Removed %s\n", cache.Path(*url, *dir))
		return nil
	case *prune:
		if err := cache.Prune(ctx); err != nil {
			return fmt.Errorf("failed to prune: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Pruned to %d bytes\n", cache.TotalSize())
		return nil
	}

	if *url == "" {
		return nil
	}
	return resolve(ctx, cache, imagecache.Props{
		Source:  imagecache.Source{URI: *url, Method: *method, Headers: headers},
		DirName: *dir,
	}, log, hooks, *cancelAfter)
}

// resolve mounts a View for p and waits until it settles.
func resolve(ctx context.Context, m imagecache.Manager, p imagecache.Props, log imagecache.Logger, hooks imagecache.Hooks, cancelAfter time.Duration) error {
	done := make(chan struct{})
	failed := make(chan error, 1)
	p.OnProgress = func(loaded, total int64) {
		if total > 0 {
			fmt.Fprintf(os.Stderr, "\r%d/%d bytes", loaded, total)
		}
	}
	p.OnError = func(err error) {
		select {
		case failed <- err:
		default:
		}
	}
	p.OnLoadEnd = func() { close(done) }
	p.OnCancel = func() {
		select {
		case failed <- fmt.Errorf("download canceled"):
		default:
		}
		close(done)
	}

	v := imagecache.New(m, p, imagecache.WithLogger(log), imagecache.WithHooks(hooks))
	defer v.Unmount()
	v.Mount()

	if s := v.State(); s.Loading {
		if cancelAfter > 0 {
			t := time.AfterFunc(cancelAfter, v.CancelDownload)
			defer t.Stop()
		}
		select {
		case <-done:
			fmt.Fprintln(os.Stderr)
		case <-ctx.Done():
			v.CancelDownload()
			<-done
		}
	}
	select {
	case err := <-failed:
		return err
	default:
	}

	out, err := json.MarshalIndent(v.State(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func newLogger(name string, h slog.Handler, verbose bool) (imagecache.Logger, error) {
	switch name {
	case "slog":
		return sloglog.Logger{L: slog.New(h)}, nil
	case "logr":
		return logrlog.Logger{L: logr.FromSlogHandler(h)}, nil
	case "logrus":
		l := logrus.New()
		l.SetOutput(os.Stderr)
		if verbose {
			l.SetLevel(logrus.DebugLevel)
		}
		return logruslog.New(l), nil
	case "zap":
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		l, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build zap logger: %w", err)
		}
		return zaplog.Logger{L: l}, nil
	}
	return nil, fmt.Errorf("unknown logger %q", name)
}

// withStores picks the record store. Redis also shares generations, so
// several processes on one root see each other's removals.
func withStores(o *filecache.Options, name, addr string) error {
	var (
		p   provider.Provider
		err error
	)
	switch name {
	case "ristretto":
		p, err = ristretto.New(ristretto.Config{})
	case "bigcache":
		p, err = bigcache.New(bigcache.Config{})
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: addr})
		p, err = redis.New(redis.Config{Client: rdb, Prefix: "imagecache:", CloseClient: true})
		o.GenStore = genstore.NewRedis(genstore.RedisConfig{Client: rdb, Namespace: o.Root, TTL: 30 * 24 * time.Hour})
	default:
		return fmt.Errorf("unknown provider %q", name)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s provider: %w", name, err)
	}
	o.Provider = p
	return nil
}

func defaultRoot() string {
	if d, err := os.UserCacheDir(); err == nil {
		return d + string(os.PathSeparator) + "imagecache"
	}
	return ".imagecache"
}
