package render

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/timmy/lazyimg/internal/logger"
	"github.com/timmy/lazyimg/internal/prefetch"
	"github.com/timmy/lazyimg/internal/storage"
)

// HTTPLoader loads primary images. Bytes already kept by the prefetch
// worker are served from the blob store; everything else is fetched.
type HTTPLoader struct {
	ctx     context.Context
	origin  string
	fetcher prefetch.Fetcher
	store   storage.BlobStore
	post    func(func()) error
	log     *logger.Logger
}

// NewHTTPLoader creates a loader.
// Parameters:
//   - ctx: lifetime of all loads.
//   - origin: base for relative URLs.
//   - fetcher: HTTP transport.
//   - store: optional blob store shared with the prefetch worker.
//   - post: runs completion callbacks on the owning loop.
//   - log: base logger.
// Returns:
//   - *HTTPLoader: loader ready for use.
func NewHTTPLoader(ctx context.Context, origin string, fetcher prefetch.Fetcher, store storage.BlobStore, post func(func()) error, log *logger.Logger) *HTTPLoader {
	if log == nil {
		log = logger.GetDefault()
	}
	return &HTTPLoader{
		ctx:     ctx,
		origin:  origin,
		fetcher: fetcher,
		store:   store,
		post:    post,
		log:     log.WithComponent("image_loader"),
	}
}

// Load fetches url in the background and posts done when it succeeds.
func (l *HTTPLoader) Load(url string, done func()) {
	go func() {
		start := time.Now()
		source, err := l.load(url)
		log := l.log.WithFields(logger.Fields{
			logger.FieldURL:        url,
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
		})
		if err != nil {
			// No completion: the element stays in its loading state.
			log.WithError(err).Warn("Failed to load image")
			return
		}
		log.WithField("source", source).Debug("Image loaded")
		if err := l.post(done); err != nil {
			log.WithError(err).Warn("Failed to deliver load completion")
		}
	}()
}

func (l *HTTPLoader) load(url string) (string, error) {
	key := storage.KeyForURL(url)
	if l.store != nil {
		if ok, err := l.store.Exists(l.ctx, key); err == nil && ok {
			rc, err := l.store.Get(l.ctx, key)
			if err == nil {
				_, err = io.Copy(io.Discard, rc)
				rc.Close()
				if err == nil {
					return "store", nil
				}
			}
		}
	}

	blob, err := l.fetcher.Fetch(l.ctx, prefetch.Resolve(l.origin, url))
	if err != nil {
		return "", err
	}
	if l.store != nil {
		if err := l.store.Put(l.ctx, key, bytes.NewReader(blob.Data), int64(len(blob.Data)), blob.ContentType); err != nil {
			l.log.WithField(logger.FieldURL, url).WithError(err).Warn("Failed to store loaded image")
		}
	}
	return "network", nil
}
