// Package fanout implements the delivery fan-out table (§4.E): a
// fixed-capacity set of HTTP streaming clients, one row per connection,
// protected by a single mutex, with per-sink-type atomic counters so the
// capture threads can skip broadcast work entirely when a sink type has no
// subscribers. This is the same shape as the teacher's relay client table
// (pkg/relay/multi_relay.go's mutex-guarded map keyed by camera ID),
// generalized from "one relay per camera" to "one row per streaming
// client" and keyed with google/uuid instead of a caller-supplied string.
package fanout

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/divinus-go/camerad/internal/mp4"
	"github.com/divinus-go/camerad/internal/packet"
)

// SinkType identifies an HTTP Sink Client's stream shape (§3).
type SinkType int

const (
	SinkH26x SinkType = iota
	SinkJPEG
	SinkMJPEG
	SinkMP4
	SinkPCM
)

func (s SinkType) String() string {
	switch s {
	case SinkH26x:
		return "h26x"
	case SinkJPEG:
		return "jpeg"
	case SinkMJPEG:
		return "mjpeg"
	case SinkMP4:
		return "mp4"
	case SinkPCM:
		return "pcm"
	default:
		return "unknown"
	}
}

// maxNALsPerH26xConnection closes an H26x connection after this many NALUs,
// forcing a reconnect that flushes server buffers (§4.E).
const maxNALsPerH26xConnection = 300

// DefaultMaxClients is the fan-out table's default row capacity (§4.E: "≤
// MAX_CLIENTS ~ 50").
const DefaultMaxClients = 50

// Sink is the per-connection transport a client table row writes to — in
// production an *http.ResponseWriter's underlying connection or a raw
// net.Conn, here reduced to the minimal surface fan-out needs. Go's net
// package never raises SIGPIPE on a write to a closed socket (unlike the
// C MSG_NOSIGNAL flag §4.E calls for), so a write error alone is sufficient
// signal to drop the client.
type Sink interface {
	io.Writer
	io.Closer
}

type sinkClient struct {
	typ     SinkType
	channel int
	sink    Sink

	// H26x accounting (§3 HTTP Sink Client: "nal_count ... resets to 0,
	// capped at 300 NALs per connection"). awaitingSync models "drop the
	// client to None before the first SPS/VPS of the session": NALUs are
	// silently discarded until a parameter-set NALU arrives.
	awaitingSync bool
	nalCount     int

	// MP4 accounting, owned exclusively by this row (§4.E: "the muxer's
	// per-client MP4 state lives in the E row; E is the only writer").
	mp4State *mp4.ClientState
}

// Table is the fixed-capacity client table (§4.E).
type Table struct {
	mu      sync.Mutex
	max     int
	clients map[uuid.UUID]*sinkClient

	h26xClients  atomic.Int32
	mp4Clients   atomic.Int32
	mjpegClients atomic.Int32
	pcmClients   atomic.Int32
}

// NewTable returns an empty table capped at max rows (DefaultMaxClients if
// max <= 0).
func NewTable(max int) *Table {
	if max <= 0 {
		max = DefaultMaxClients
	}
	return &Table{max: max, clients: make(map[uuid.UUID]*sinkClient)}
}

// Add registers a new client and returns its table key. It fails once the
// table is at capacity.
func (t *Table) Add(typ SinkType, channel int, sink Sink) (uuid.UUID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.clients) >= t.max {
		return uuid.Nil, fmt.Errorf("fanout: client table full (max %d)", t.max)
	}

	id := uuid.New()
	c := &sinkClient{typ: typ, channel: channel, sink: sink}
	if typ == SinkH26x {
		c.awaitingSync = true
	}
	if typ == SinkMP4 {
		c.mp4State = &mp4.ClientState{}
	}
	t.clients[id] = c
	t.counter(typ).Add(1)
	return id, nil
}

// Remove unregisters a client and closes its sink. Safe to call even if
// the client was already removed by a broadcast's drop-on-failure path.
func (t *Table) Remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
}

func (t *Table) removeLocked(id uuid.UUID) {
	c, ok := t.clients[id]
	if !ok {
		return
	}
	delete(t.clients, id)
	t.counter(c.typ).Add(-1)
	c.sink.Close()
}

func (t *Table) counter(typ SinkType) *atomic.Int32 {
	switch typ {
	case SinkH26x:
		return &t.h26xClients
	case SinkMP4:
		return &t.mp4Clients
	case SinkMJPEG:
		return &t.mjpegClients
	case SinkPCM:
		return &t.pcmClients
	default:
		// JPEG is one-shot and never held in steady-state counts.
		return new(atomic.Int32)
	}
}

// HasH26xClients short-circuits the NALU capture path when no H26x client
// is attached (§4.E: "short-circuits the broadcast when zero").
func (t *Table) HasH26xClients() bool { return t.h26xClients.Load() > 0 }

// HasMP4Clients short-circuits the MP4 fragment path.
func (t *Table) HasMP4Clients() bool { return t.mp4Clients.Load() > 0 }

// HasMJPEGClients short-circuits the MJPEG snapshot path.
func (t *Table) HasMJPEGClients() bool { return t.mjpegClients.Load() > 0 }

// HasPCMClients short-circuits the PCM audio broadcast path.
func (t *Table) HasPCMClients() bool { return t.pcmClients.Load() > 0 }

// Len returns the current row count, primarily for diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}
