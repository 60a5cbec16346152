package download

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"golang.org/x/sync/semaphore"
)

// maxConcurrentManifestFiles bounds how many files of one manifest are
// downloaded in parallel, so a shard-heavy model doesn't open one
// connection per shard.
const maxConcurrentManifestFiles = 4

// ManifestFile describes one file within a Manifest. Digest, when set, is a
// "sha256:<hex>" string the downloaded file's content must match; an empty
// Digest skips verification (most repo hosts don't publish one per file).
type ManifestFile struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	Digest string `json:"digest,omitempty"`
}

// Manifest is the on-disk ".download_manifest.json" written into a
// snapshot directory while a multi-file download is in progress.
type Manifest struct {
	DownloadPath string         `json:"download_path"`
	FilesCount   int            `json:"files_count"`
	Files        []ManifestFile `json:"files"`
}

// ManifestPath returns the conventional manifest path within dir.
func ManifestPath(dir string) string {
	return filepath.Join(dir, ".download_manifest.json")
}

// WriteManifest persists m atomically (write-then-rename).
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadManifest loads a manifest previously written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ManifestProgress reports aggregate progress across an entire manifest
// download, shaped to match the "progress" server-sent event published to
// pull-status subscribers.
type ManifestProgress struct {
	File            string
	FileIndex       int
	TotalFiles      int
	BytesDownloaded int64
	BytesTotal      int64
	Percent         float64
}

// ManifestProgressFunc mirrors ProgressFunc but carries per-file context;
// returning false cancels the remainder of the manifest download.
type ManifestProgressFunc func(ManifestProgress) bool

// DownloadManifest downloads m.Files into m.DownloadPath, up to
// maxConcurrentManifestFiles at a time, propagating cancellation, and
// validating on completion that every file exists with its expected size
// and no stray ".partial" sibling remains. Progress callbacks report the
// aggregate percentage across every file's bytes, not just the one that
// most recently reported; the first failing or cancelled file stops the
// rest from starting (in-flight downloads are cancelled via ctx).
func (e *Engine) DownloadManifest(ctx context.Context, m Manifest, headers map[string]string, progress ManifestProgressFunc) error {
	if err := os.MkdirAll(m.DownloadPath, 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	opts := DefaultOptions()
	opts.Headers = headers

	overallTotal := manifestTotalSize(m.Files)
	done := make([]int64, len(m.Files))

	reportProgress := func(i int, f ManifestFile, downloaded, total int64) bool {
		if total == 0 {
			total = f.Size
		}
		atomic.StoreInt64(&done[i], downloaded)
		if progress == nil {
			return true
		}
		var overallDone int64
		for j := range done {
			overallDone += atomic.LoadInt64(&done[j])
		}
		percent := 0.0
		if overallTotal > 0 {
			percent = 100 * float64(overallDone) / float64(overallTotal)
		}
		return progress(ManifestProgress{
			File:            f.Name,
			FileIndex:       i,
			TotalFiles:      m.FilesCount,
			BytesDownloaded: downloaded,
			BytesTotal:      total,
			Percent:         percent,
		})
	}

	sem := semaphore.NewWeighted(maxConcurrentManifestFiles)
	fileCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg         sync.WaitGroup
		firstErr   error
		cancelled  bool
		resultOnce sync.Mutex
	)

	recordFailure := func(err error, wasCancelled bool) {
		resultOnce.Lock()
		defer resultOnce.Unlock()
		if firstErr == nil {
			firstErr = err
			cancelled = wasCancelled
			cancel()
		}
	}

	for i, f := range m.Files {
		if err := sem.Acquire(fileCtx, 1); err != nil {
			break
		}
		i, f := i, f
		dest := filepath.Join(m.DownloadPath, f.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			sem.Release(1)
			recordFailure(fmt.Errorf("create parent directory for %s: %w", f.Name, err), false)
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			cb := func(downloaded, total int64) bool {
				return reportProgress(i, f, downloaded, total)
			}
			res := e.Download(fileCtx, f.URL, dest, cb, opts)
			if res.Cancelled {
				recordFailure(&transientError{fmt.Errorf("download cancelled")}, true)
				return
			}
			if !res.Success {
				recordFailure(fmt.Errorf("download %s: %w", f.Name, res.Err), false)
			}
		}()
	}

	wg.Wait()
	if firstErr != nil {
		if cancelled {
			return &transientError{fmt.Errorf("download cancelled")}
		}
		return firstErr
	}

	return validateManifest(m)
}

func manifestTotalSize(files []ManifestFile) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

// validateManifest is also exported as Validate.
func validateManifest(m Manifest) error {
	for _, f := range m.Files {
		dest := filepath.Join(m.DownloadPath, f.Name)
		fi, err := os.Stat(dest)
		if err != nil {
			return fmt.Errorf("validate manifest: missing file %s; rerun the pull to resume: %w", f.Name, err)
		}
		if f.Size > 0 && fi.Size() != f.Size {
			return fmt.Errorf("validate manifest: %s has size %d, expected %d; rerun the pull to resume", f.Name, fi.Size(), f.Size)
		}
		if _, err := os.Stat(dest + ".partial"); err == nil {
			return fmt.Errorf("validate manifest: stray partial file for %s; rerun the pull to resume", f.Name)
		}
		if f.Digest != "" {
			if err := verifyDigest(dest, f.Digest); err != nil {
				return fmt.Errorf("validate manifest: %s: %w; rerun the pull to resume", f.Name, err)
			}
		}
	}
	return nil
}

// verifyDigest hashes the file at path and compares it against want, a
// "sha256:<hex>" digest string in the same form the distribution registry
// API uses for blob content addressing.
func verifyDigest(path, want string) error {
	wantHash, err := v1.NewHash(want)
	if err != nil {
		return fmt.Errorf("parse expected digest %q: %w", want, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gotHash, _, err := v1.SHA256(f)
	if err != nil {
		return fmt.Errorf("hash downloaded file: %w", err)
	}
	if gotHash != wantHash {
		return fmt.Errorf("digest mismatch: got %s, want %s", gotHash, wantHash)
	}
	return nil
}

// Validate exposes validateManifest for callers outside this package.
func Validate(m Manifest) error { return validateManifest(m) }
