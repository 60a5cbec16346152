// Package download implements a resumable, cancellable, multi-file download
// engine: a plain URL-based engine that the catalogue layers HuggingFace
// (and other) URL construction on top of.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
)

// ProgressFunc reports bytesDownloaded/bytesTotal (bytesTotal is 0 when
// unknown). Returning false cancels the transfer; the callback itself is
// throttled client-side to at most once per second.
type ProgressFunc func(bytesDownloaded, bytesTotal int64) bool

// Options tunes retry/backoff and stall detection.
type Options struct {
	MaxRetries       int
	InitialRetryWait time.Duration
	MaxRetryWait     time.Duration
	LowSpeedLimit    int64 // bytes/sec
	LowSpeedTime     time.Duration
	Headers          map[string]string
}

// DefaultOptions returns the engine's default retry/backoff/stall tuning.
func DefaultOptions() Options {
	return Options{
		MaxRetries:       5,
		InitialRetryWait: 500 * time.Millisecond,
		MaxRetryWait:     30 * time.Second,
		LowSpeedLimit:    1024,
		LowSpeedTime:     20 * time.Second,
	}
}

// Result reports the outcome of a single-file download.
type Result struct {
	Success   bool
	Cancelled bool
	Err       error
}

// Engine performs downloads. It holds no state beyond an HTTP client and a
// logger, so a single Engine is reused across every download in the
// process.
type Engine struct {
	log    logging.Logger
	client *http.Client
}

// New creates a download engine using client, or http.DefaultClient if nil.
func New(log logging.Logger, client *http.Client) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	return &Engine{log: log.WithField("component", "download"), client: client}
}

const progressThrottle = time.Second

// Download transfers url to dest, resuming from an existing dest+".partial"
// if present.
func (e *Engine) Download(ctx context.Context, url, dest string, progress ProgressFunc, opts Options) Result {
	partial := dest + ".partial"
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{Err: fmt.Errorf("create parent directory: %w", err)}
	}

	wait := opts.InitialRetryWait
	if wait <= 0 {
		wait = DefaultOptions().InitialRetryWait
	}
	maxWait := opts.MaxRetryWait
	if maxWait <= 0 {
		maxWait = DefaultOptions().MaxRetryWait
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultOptions().MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		res := e.attempt(ctx, url, dest, partial, progress, opts)
		if res.Cancelled {
			return res
		}
		if res.Success {
			return res
		}
		lastErr = res.Err
		if !isTransient(res.Err) {
			return res
		}
		if attempt == maxRetries {
			break
		}
		e.log.Warnf("download attempt %d for %s failed: %v; retrying in %s", attempt+1, url, res.Err, wait)
		select {
		case <-ctx.Done():
			return Result{Err: ctx.Err()}
		case <-time.After(jitter(wait)):
		}
		wait *= 2
		if wait > maxWait {
			wait = maxWait
		}
	}
	return Result{Err: fmt.Errorf("download failed after %d attempts: %w (partial file preserved at %s)", maxRetries+1, lastErr, partial)}
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d)/2+1))
}

type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var t *transientError
	return errors.As(err, &t)
}

// attempt performs a single ranged-resume download attempt.
func (e *Engine) attempt(ctx context.Context, url, dest, partial string, progress ProgressFunc, opts Options) Result {
	var startOffset int64
	if fi, err := os.Stat(partial); err == nil {
		startOffset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Err: err}
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	resumed := startOffset > 0
	if resumed {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startOffset))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{Err: &transientError{err}}
	}
	defer resp.Body.Close()

	var total int64 = -1
	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored (or we didn't send) the range; restart from scratch.
		startOffset = 0
		flags |= os.O_TRUNC
		if resp.ContentLength > 0 {
			total = resp.ContentLength
		}
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		if resp.ContentLength > 0 {
			total = startOffset + resp.ContentLength
		}
	case http.StatusRequestedRangeNotSatisfiable:
		// Partial file is already complete or server state changed; restart.
		os.Remove(partial)
		return Result{Err: &transientError{fmt.Errorf("range not satisfiable, restarting")}}
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return Result{Err: &transientError{fmt.Errorf("server returned %d", resp.StatusCode)}}
	default:
		return Result{Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	}

	f, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return Result{Err: fmt.Errorf("open partial file: %w", err)}
	}
	defer f.Close()

	pw := &progressWriter{
		w:           f,
		downloaded:  startOffset,
		total:       total,
		cb:          progress,
		lastReport:  time.Time{},
		lowSpeed:    opts.LowSpeedLimit,
		lowSpeedFor: opts.LowSpeedTime,
	}

	_, err = io.Copy(pw, resp.Body)
	if pw.cancelled {
		return Result{Cancelled: true}
	}
	if err != nil {
		if pw.stalled {
			return Result{Err: &transientError{err}}
		}
		return Result{Err: &transientError{err}}
	}

	if total > 0 && pw.downloaded != total {
		return Result{Err: &transientError{fmt.Errorf("short read: got %d of %d bytes", pw.downloaded, total)}}
	}

	if err := f.Close(); err != nil {
		return Result{Err: fmt.Errorf("close partial file: %w", err)}
	}
	if err := os.Rename(partial, dest); err != nil {
		return Result{Err: fmt.Errorf("rename partial to final: %w", err)}
	}
	return Result{Success: true}
}

// progressWriter wraps the destination file, throttling progress callbacks
// and detecting both cancellation and a stalled transfer.
type progressWriter struct {
	w           io.Writer
	downloaded  int64
	total       int64
	cb          ProgressFunc
	lastReport  time.Time
	cancelled   bool
	stalled     bool
	lowSpeed    int64
	lowSpeedFor time.Duration
	sinceMark   time.Time
	markBytes   int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.downloaded += int64(n)
		now := time.Now()
		if p.sinceMark.IsZero() {
			p.sinceMark = now
			p.markBytes = p.downloaded
		}
		if p.lowSpeed > 0 && p.lowSpeedFor > 0 && now.Sub(p.sinceMark) >= p.lowSpeedFor {
			rate := float64(p.downloaded-p.markBytes) / now.Sub(p.sinceMark).Seconds()
			if int64(rate) < p.lowSpeed {
				p.stalled = true
				return n, fmt.Errorf("transfer stalled below %d bytes/sec for %s", p.lowSpeed, p.lowSpeedFor)
			}
			p.sinceMark = now
			p.markBytes = p.downloaded
		}
		if p.cb != nil && (p.lastReport.IsZero() || now.Sub(p.lastReport) >= progressThrottle) {
			p.lastReport = now
			total := p.total
			if total < 0 {
				total = 0
			}
			if !p.cb(p.downloaded, total) {
				p.cancelled = true
				return n, errors.New("download cancelled by progress callback")
			}
		}
	}
	return n, err
}
