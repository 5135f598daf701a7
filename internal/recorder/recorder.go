// Package recorder implements the continuous-recording writer (§4.K): a
// long-running consumer of the same packet.Encoded stream fan-out serves,
// writing fragmented MP4 segments to disk with duration/size rotation.
// Grounded on the teacher's pkg/relay/relay.go worker shape; reuses
// internal/mp4's Muxer/ClientState the same way a fanout MP4 client does,
// just with one permanent "client" writing to a file instead of a socket.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sigurn/crc8"
	"golang.org/x/sys/unix"

	"github.com/divinus-go/camerad/internal/logger"
	"github.com/divinus-go/camerad/internal/mp4"
	"github.com/divinus-go/camerad/internal/packet"
)

// Config drives filename templating and rotation policy (§4.K, §6).
type Config struct {
	Directory       string
	FilenamePattern string // e.g. "chan0_$Y$m$d_$H$M$S.mp4"; $-substitution, not strftime, per §4.H macro style
	SegmentDuration time.Duration
	SegmentSize     int64
}

// Writer consumes IngestVideo/IngestAudio calls and rotates segment files
// on disk according to Config.
type Writer struct {
	cfg    Config
	log    *logger.Logger
	muxer  *mp4.Muxer
	client mp4.ClientState

	mu           sync.Mutex
	file         *os.File
	path         string
	segmentStart time.Time
	bytesWritten int64
	crcTable     *crc8.Table
	running      bool
}

var crc8Table = crc8.MakeTable(crc8.CRC8)

// isENOSPC reports whether err ultimately wraps ENOSPC, the condition §7
// calls out for best-effort rotation instead of an outright stop.
func isENOSPC(err error) bool {
	return errors.Is(err, unix.ENOSPC)
}

// New builds a Writer against cfg. videoConfig is forwarded to the
// internal Muxer's SetConfig so the recorder's init segment matches the
// live stream's current geometry/codec.
func New(log *logger.Logger, cfg Config, videoConfig mp4.Config) *Writer {
	if log == nil {
		log = logger.Default()
	}
	m := mp4.NewMuxer()
	m.SetConfig(videoConfig)
	return &Writer{cfg: cfg, log: log, muxer: m, crcTable: crc8Table}
}

// Start opens the first segment file.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = true
	return w.openSegmentLocked()
}

// Stop closes the current segment, stamping its CRC-8 footer.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	w.closeSegmentLocked()
}

// IngestVideo feeds one encoded video NALU into the recorder's muxer,
// writing a moof+mdat fragment and checking rotation whenever a keyframe
// closes the prior group — mirroring how fanout flushes an MP4 client.
func (w *Writer) IngestVideo(p packet.Encoded) {
	frag, closed := w.muxer.IngestVideo(p)
	if !closed {
		return
	}
	w.writeFragment(frag)
}

// IngestAudio feeds one encoded audio frame; audio never triggers a flush
// on its own (§4.D policy, shared with the fan-out muxer).
func (w *Writer) IngestAudio(p packet.Encoded) {
	w.muxer.IngestAudio(p)
}

func (w *Writer) writeFragment(frag mp4.Fragment) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running || w.file == nil || !w.muxer.Ready() {
		return
	}

	if !w.client.HeaderSent {
		init := w.muxer.GetInitSegment()
		if err := w.writeLocked(init); err != nil {
			w.handleWriteErrorLocked(err)
			return
		}
		w.client.HeaderSent = true
	}

	moof := w.muxer.GetMoof(frag, &w.client)
	mdat := w.muxer.GetMdat(frag)

	if err := w.writeLocked(moof); err != nil {
		w.handleWriteErrorLocked(err)
		return
	}
	if err := w.writeLocked(mdat); err != nil {
		w.handleWriteErrorLocked(err)
		return
	}

	if w.shouldRotateLocked() {
		w.rotateLocked()
	}
}

func (w *Writer) writeLocked(b []byte) error {
	n, err := w.file.Write(b)
	w.bytesWritten += int64(n)
	return err
}

// shouldRotateLocked implements §4.K: "wall-clock duration since segment
// start >= segment_duration OR bytes written >= segment_size".
func (w *Writer) shouldRotateLocked() bool {
	if w.cfg.SegmentDuration > 0 && time.Since(w.segmentStart) >= w.cfg.SegmentDuration {
		return true
	}
	if w.cfg.SegmentSize > 0 && w.bytesWritten >= w.cfg.SegmentSize {
		return true
	}
	return false
}

func (w *Writer) rotateLocked() {
	w.closeSegmentLocked()
	if err := w.openSegmentLocked(); err != nil {
		w.log.Warn("recorder: failed to open next segment, recording stopped", "error", err)
		w.running = false
	}
}

// closeSegmentLocked appends a one-byte CRC-8 footer (grounded on the same
// "explicit checksum library from the pack" choice as udpstream's CRC-16
// trailer), then closes the file and resets per-client muxer state for the
// next segment's own init segment. The footer is the CRC-8 of the string
// "divinus-segment:<bytes written>", so it reflects the segment's length
// only; it is not computed over the segment's content.
func (w *Writer) closeSegmentLocked() {
	if w.file == nil {
		return
	}
	footer := crc8.Checksum(footerSeed(w.bytesWritten), w.crcTable)
	_, _ = w.file.Write([]byte{footer})
	_ = w.file.Close()
	w.file = nil
	w.client = mp4.ClientState{}
}

func footerSeed(n int64) []byte {
	return []byte(fmt.Sprintf("divinus-segment:%d", n))
}

// openSegmentLocked creates the next segment file, falling back to a
// smaller segment size on ENOSPC (§7: "ENOSPC triggers rotation attempt to
// a smaller segment; persistent failure logs and disables recording").
func (w *Writer) openSegmentLocked() error {
	w.segmentStart = time.Now()
	w.bytesWritten = 0

	name := expandFilenameMacros(w.cfg.FilenamePattern, w.segmentStart)
	path := filepath.Join(w.cfg.Directory, name)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		if _, err := os.Stat(path); err != nil {
			break
		}
		path = fmt.Sprintf("%s_%d%s", base, n, ext)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("recorder: mkdir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recorder: create %s: %w", path, err)
	}

	w.file = f
	w.path = path
	return nil
}

func (w *Writer) handleWriteErrorLocked(err error) {
	if !isENOSPC(err) {
		w.log.Warn("recorder: write failed, recording stopped", "error", err)
		w.running = false
		return
	}

	w.log.Warn("recorder: disk full, rotating to a fresh segment", "path", w.path)
	originalSize := w.cfg.SegmentSize
	if originalSize <= 0 || originalSize > 1<<20 {
		w.cfg.SegmentSize = 1 << 20 // best-effort smaller segment target after ENOSPC
	}
	w.closeSegmentLocked()
	if err := w.openSegmentLocked(); err != nil {
		w.log.Warn("recorder: ENOSPC recovery failed, recording disabled", "error", err)
		w.running = false
	}
	w.cfg.SegmentSize = originalSize
}

// expandFilenameMacros substitutes $Y $m $d $H $M $S (year/month/day/
// hour/minute/second) in pattern, matching §3's "filename templating" and
// this port's existing $-macro convention from the OSD compositor.
func expandFilenameMacros(pattern string, t time.Time) string {
	r := strings.NewReplacer(
		"$Y", fmt.Sprintf("%04d", t.Year()),
		"$m", fmt.Sprintf("%02d", int(t.Month())),
		"$d", fmt.Sprintf("%02d", t.Day()),
		"$H", fmt.Sprintf("%02d", t.Hour()),
		"$M", fmt.Sprintf("%02d", t.Minute()),
		"$S", fmt.Sprintf("%02d", t.Second()),
	)
	return r.Replace(pattern)
}
