// Package progress turns the raw, line-oriented output of the external tool
// into structured progress snapshots. The parser is incremental: callers
// feed arbitrary byte chunks as they arrive from the subprocess and receive
// zero or more snapshots per feed. Chunk boundaries never change the result.
//
// The line grammar matches legendary's downloader output. Exact field
// positions are a parsing detail of the tool's current format; the
// download/verify phase shape is the contract.
package progress

import (
	"bytes"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Snapshot is one point-in-time structured progress reading.
// Percentage is best-effort display data; the tool does not guarantee
// monotonicity.
type Snapshot struct {
	// Percentage is 0-100. During verification it reports the verification
	// counters, not download progress.
	Percentage float64
	// SpeedBytesPerSec is the most recent average download rate.
	SpeedBytesPerSec float64
	// ETASeconds is the estimated remaining time. +Inf when unknown.
	ETASeconds float64
	// DownloadedBytes and TotalBytes describe byte progress where
	// applicable. DownloadedBytes is derived from the percentage when the
	// tool does not report bytes directly.
	DownloadedBytes int64
	TotalBytes      int64
	// Verifying is true while the tool runs its verification sub-phase.
	Verifying bool
}

// Line patterns for legendary's downloader output. Matched anywhere in the
// line so log prefixes ("[DLManager] INFO:") don't matter.
var (
	// = Progress: 10.12% (278/2747), Running for 00:00:19, ETA: 00:02:51
	progressPattern = regexp.MustCompile(`Progress:\s*([0-9.]+)%\s*\((\d+)/(\d+)\)(?:,\s*Running for\s*([0-9:]+))?(?:,\s*ETA:\s*([0-9:]+))?`)

	// + Download	- 17.28 MiB/s (raw) / 22.45 MiB/s (decompressed)
	speedPattern = regexp.MustCompile(`Download\s*-\s*([0-9.]+)\s*([KMG]iB)/s`)

	// - Downloaded: 336.87 MiB, Written: 437.58 MiB
	downloadedPattern = regexp.MustCompile(`Downloaded:\s*([0-9.]+)\s*([KMG]iB)`)

	// Verification progress: 280/2747 (10.2%) [31.2 MiB/s]
	verifyPattern = regexp.MustCompile(`Verification progress:\s*(\d+)/(\d+)\s*\(([0-9.]+)%\)(?:\s*\[([0-9.]+)\s*([KMG]iB)/s\])?`)

	// Install size: 89.31 GiB
	installSizePattern = regexp.MustCompile(`Install size:\s*([0-9.]+)\s*([KMG]iB)`)

	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
)

// maxLineLen bounds the partial-line buffer so a misbehaving tool that never
// emits a newline cannot grow memory without limit.
const maxLineLen = 64 * 1024

// Parser accumulates partial output lines and extracts snapshots once full
// lines are available. It never blocks and never fails on malformed input;
// unrecognized lines are dropped. Not safe for concurrent use; each
// operation owns its own Parser.
type Parser struct {
	buf     bytes.Buffer
	current Snapshot
}

// NewParser creates a Parser. totalBytes is the expected download size used
// to derive byte progress from percentages; pass 0 when unknown (the parser
// picks it up from the tool's "Install size" line if one appears).
func NewParser(totalBytes int64) *Parser {
	return &Parser{
		current: Snapshot{
			ETASeconds: math.Inf(1),
			TotalBytes: totalBytes,
		},
	}
}

// Feed consumes one chunk of raw subprocess output and returns the snapshots
// completed by it, in arrival order.
func (p *Parser) Feed(chunk []byte) []Snapshot {
	var snaps []Snapshot

	for _, b := range chunk {
		if b == '\n' || b == '\r' {
			if line := p.takeLine(); line != "" {
				if snap, ok := p.parseLine(line); ok {
					snaps = append(snaps, snap)
				}
			}
			continue
		}
		if p.buf.Len() < maxLineLen {
			p.buf.WriteByte(b)
		}
	}

	return snaps
}

// Flush processes any trailing unterminated line. Call once after the
// subprocess has exited.
func (p *Parser) Flush() []Snapshot {
	line := p.takeLine()
	if line == "" {
		return nil
	}
	if snap, ok := p.parseLine(line); ok {
		return []Snapshot{snap}
	}
	return nil
}

// takeLine drains the partial-line buffer.
func (p *Parser) takeLine() string {
	if p.buf.Len() == 0 {
		return ""
	}
	line := p.buf.String()
	p.buf.Reset()
	return strings.TrimSpace(stripAnsi(line))
}

// parseLine attempts extraction with each known line shape. At most one
// shape matches; a match updates the merged state and yields a snapshot so
// percentage and rate lines correlate by arrival order.
func (p *Parser) parseLine(line string) (Snapshot, bool) {
	if m := verifyPattern.FindStringSubmatch(line); m != nil {
		return p.applyVerify(m), true
	}
	if m := progressPattern.FindStringSubmatch(line); m != nil {
		return p.applyProgress(m), true
	}
	if m := speedPattern.FindStringSubmatch(line); m != nil {
		return p.applySpeed(m), true
	}
	if m := downloadedPattern.FindStringSubmatch(line); m != nil {
		return p.applyDownloaded(m), true
	}
	if m := installSizePattern.FindStringSubmatch(line); m != nil {
		if p.current.TotalBytes == 0 {
			p.current.TotalBytes = int64(parseUnitValue(m[1], m[2]))
		}
		// Size lines carry no progress of their own.
		return Snapshot{}, false
	}
	return Snapshot{}, false
}

func (p *Parser) applyProgress(m []string) Snapshot {
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return p.current
	}
	p.current.Verifying = false
	p.current.Percentage = clampPercent(pct)

	elapsed := parseClock(m[4])
	eta := parseClock(m[5])
	switch {
	case m[5] != "" && eta >= 0:
		p.current.ETASeconds = eta
	case elapsed > 0 && p.current.Percentage > 0:
		// The tool did not supply an ETA; estimate the total runtime from
		// elapsed time and completed fraction.
		total := elapsed / (p.current.Percentage / 100)
		p.current.ETASeconds = (1 - p.current.Percentage/100) * total
	case p.current.Percentage >= 100:
		p.current.ETASeconds = 0
	default:
		p.current.ETASeconds = math.Inf(1)
	}

	if p.current.TotalBytes > 0 {
		p.current.DownloadedBytes = int64(p.current.Percentage / 100 * float64(p.current.TotalBytes))
	}

	return p.current
}

func (p *Parser) applySpeed(m []string) Snapshot {
	p.current.SpeedBytesPerSec = parseUnitValue(m[1], m[2])
	return p.current
}

func (p *Parser) applyDownloaded(m []string) Snapshot {
	p.current.DownloadedBytes = int64(parseUnitValue(m[1], m[2]))
	return p.current
}

func (p *Parser) applyVerify(m []string) Snapshot {
	p.current.Verifying = true

	done, err1 := strconv.ParseFloat(m[1], 64)
	total, err2 := strconv.ParseFloat(m[2], 64)
	if err1 == nil && err2 == nil && total > 0 {
		p.current.Percentage = clampPercent(done / total * 100)
	} else if pct, err := strconv.ParseFloat(m[3], 64); err == nil {
		p.current.Percentage = clampPercent(pct)
	}

	if m[4] != "" {
		p.current.SpeedBytesPerSec = parseUnitValue(m[4], m[5])
	}
	p.current.ETASeconds = math.Inf(1)

	return p.current
}

// parseUnitValue converts "17.28" + "MiB" into bytes.
func parseUnitValue(value, unit string) float64 {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	switch unit {
	case "KiB":
		return v * 1024
	case "MiB":
		return v * 1024 * 1024
	case "GiB":
		return v * 1024 * 1024 * 1024
	default:
		return v
	}
}

// parseClock converts "HH:MM:SS" (or "MM:SS") to seconds.
// Returns -1 when the input does not parse.
func parseClock(s string) float64 {
	if s == "" {
		return -1
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return -1
	}

	var total float64
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return -1
		}
		total = total*60 + float64(n)
	}
	return total
}

func clampPercent(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// stripAnsi removes ANSI escape sequences so cursor styling from the tool
// never confuses the patterns.
func stripAnsi(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
