package tools

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/progress"
)

const (
	downloadRetries = 3
	// publishInterval throttles progress events during a download.
	publishInterval = 200 * time.Millisecond
	// speedWindow is how far back the rolling rate average looks.
	speedWindow = 5 * time.Second
)

// rateWindow computes a rolling average transfer rate from timestamped
// byte counters.
type rateWindow struct {
	samples []rateSample
}

type rateSample struct {
	at    time.Time
	bytes int64
}

// Add records the cumulative byte count at now and drops samples older
// than the window.
func (w *rateWindow) Add(bytes int64, now time.Time) {
	w.samples = append(w.samples, rateSample{at: now, bytes: bytes})
	cutoff := now.Add(-speedWindow)
	trim := 0
	for trim < len(w.samples)-1 && w.samples[trim].at.Before(cutoff) {
		trim++
	}
	w.samples = w.samples[trim:]
}

// Speed returns the windowed average in bytes per second, zero until two
// samples exist.
func (w *rateWindow) Speed() float64 {
	if len(w.samples) < 2 {
		return 0
	}
	first, last := w.samples[0], w.samples[len(w.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.bytes-first.bytes) / elapsed
}

// download fetches url into dst with retries, publishing byte-level
// progress. The file lands via a temp path and rename so dst never holds
// a partial body. totalBytes may be zero when the release did not report
// a size.
func (m *Manager) download(ctx context.Context, url, dst string, totalBytes int64, publish func(progress.Snapshot)) error {
	var lastErr error
	for attempt := 0; attempt < downloadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
			m.log.Info("retrying download",
				"url", url,
				"attempt", attempt+1)
		}

		lastErr = m.downloadOnce(ctx, url, dst, totalBytes, publish)
		if lastErr == nil || errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
	}
	return lastErr
}

func (m *Manager) downloadOnce(ctx context.Context, url, dst string, totalBytes int64, publish func(progress.Snapshot)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}
	if totalBytes <= 0 && resp.ContentLength > 0 {
		totalBytes = resp.ContentLength
	}

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	tracker := &transferTracker{total: totalBytes, publish: publish}
	_, copyErr := io.Copy(io.MultiWriter(out, tracker), resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return copyErr
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}
	tracker.flush()

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// transferTracker publishes throttled byte-progress snapshots with a
// rolling-window speed and a remaining-bytes ETA.
type transferTracker struct {
	total   int64
	done    int64
	window  rateWindow
	lastPub time.Time
	publish func(progress.Snapshot)
}

func (t *transferTracker) Write(p []byte) (int, error) {
	t.done += int64(len(p))
	now := time.Now()
	t.window.Add(t.done, now)

	if now.Sub(t.lastPub) >= publishInterval {
		t.lastPub = now
		t.publish(t.snapshot())
	}
	return len(p), nil
}

// flush publishes the final state regardless of throttling.
func (t *transferTracker) flush() {
	t.publish(t.snapshot())
}

func (t *transferTracker) snapshot() progress.Snapshot {
	snap := progress.Snapshot{
		DownloadedBytes:  t.done,
		TotalBytes:       t.total,
		SpeedBytesPerSec: t.window.Speed(),
	}
	if t.total > 0 {
		snap.Percentage = float64(t.done) / float64(t.total) * 100
		if snap.Percentage > 100 {
			snap.Percentage = 100
		}
	}
	switch {
	case t.done >= t.total && t.total > 0:
		snap.ETASeconds = 0
	case snap.SpeedBytesPerSec > 0 && t.total > 0:
		snap.ETASeconds = float64(t.total-t.done) / snap.SpeedBytesPerSec
	default:
		snap.ETASeconds = math.Inf(1)
	}
	return snap
}

// resolveChecksum returns the expected hex digest for a descriptor,
// fetching the sidecar checksum asset when the release API carried no
// digest. Empty means the release publishes no checksum.
func (m *Manager) resolveChecksum(ctx context.Context, desc Descriptor) (string, error) {
	if desc.Checksum != "" {
		return strings.ToLower(desc.Checksum), nil
	}
	if desc.ChecksumURL == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.ChecksumURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("checksum fetch: HTTP %d", resp.StatusCode)
	}

	// Checksum files hold "<hex>  <filename>" lines; the first hex
	// token is the digest.
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, 4096))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && isHex(fields[0]) {
			return strings.ToLower(fields[0]), nil
		}
	}
	return "", fmt.Errorf("checksum file carried no digest")
}

// verifyChecksum hashes path and compares against want, choosing the
// algorithm by digest length.
func verifyChecksum(path, want string) error {
	var h hash.Hash
	switch len(want) {
	case sha256.Size * 2:
		h = sha256.New()
	case sha512.Size * 2:
		h = sha512.New()
	default:
		return fmt.Errorf("unrecognized digest length %d", len(want))
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return err
	}

	got := hex.EncodeToString(h.Sum(nil))
	if got != want {
		return fmt.Errorf("%w: got %s, want %s", errors.ErrChecksumMismatch, got, want)
	}
	return nil
}

func isHex(s string) bool {
	if len(s) < 32 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
