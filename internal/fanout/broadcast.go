package fanout

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/divinus-go/camerad/internal/mp4"
	"github.com/divinus-go/camerad/internal/packet"
)

// writeChunk writes one HTTP chunked-transfer-encoded record: the chunk
// size in hex, CRLF, the payload, CRLF (§4.E send_h26x/send_mp4/send_pcm).
func writeChunk(w Sink, payload []byte) error {
	if _, err := w.Write([]byte(strconv.FormatInt(int64(len(payload)), 16) + "\r\n")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// writeFinalChunk ends a chunked-transfer-encoded response.
func writeFinalChunk(w Sink) error {
	_, err := w.Write([]byte("0\r\n\r\n"))
	return err
}

// SendH26x broadcasts one callback's worth of NALUs to every H26x client
// bound to channel (§4.E send_h26x). A client that has not yet seen an
// SPS/VPS drops NALUs silently until one arrives; a client that reaches
// maxNALsPerH26xConnection is closed with a final chunk, forcing a
// reconnect. A client whose write fails is dropped immediately — a failure
// on one client never stops delivery to the others (§5 failure semantics).
func (t *Table) SendH26x(channel int, nalus []packet.Encoded) {
	if !t.HasH26xClients() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var dead []uuid.UUID
	for id, c := range t.clients {
		if c.typ != SinkH26x || c.channel != channel {
			continue
		}

		for _, p := range nalus {
			if c.awaitingSync {
				if p.NALUType != packet.NALUSPS && p.NALUType != packet.NALUVPS {
					continue
				}
				c.awaitingSync = false
			}

			if err := writeChunk(c.sink, p.Data); err != nil {
				dead = append(dead, id)
				break
			}

			c.nalCount++
			if c.nalCount >= maxNALsPerH26xConnection {
				writeFinalChunk(c.sink)
				dead = append(dead, id)
				break
			}
		}
	}

	for _, id := range dead {
		t.removeLocked(id)
	}
}

// SendMP4 broadcasts one flushed fragment to every MP4 client bound to
// channel (§4.E send_mp4): the init segment is sent once per client, then
// every fragment as one chunked moof+mdat record. muxer must already have
// enough decoder config to build an init segment (mp4.Muxer.Ready).
func (t *Table) SendMP4(channel int, muxer *mp4.Muxer, frag mp4.Fragment) {
	if !t.HasMP4Clients() || !muxer.Ready() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var dead []uuid.UUID
	for id, c := range t.clients {
		if c.typ != SinkMP4 || c.channel != channel {
			continue
		}

		if !c.mp4State.HeaderSent {
			if err := writeChunk(c.sink, muxer.GetInitSegment()); err != nil {
				dead = append(dead, id)
				continue
			}
			c.mp4State.HeaderSent = true
		}

		moof := muxer.GetMoof(frag, c.mp4State)
		mdat := muxer.GetMdat(frag)
		if err := writeChunk(c.sink, append(moof, mdat...)); err != nil {
			dead = append(dead, id)
		}
	}

	for _, id := range dead {
		t.removeLocked(id)
	}
}

// SendMJPEG broadcasts one JPEG frame to every multipart/x-mixed-replace
// client bound to channel (§4.E send_mjpeg).
func (t *Table) SendMJPEG(channel int, jpeg []byte) {
	if !t.HasMJPEGClients() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	part := make([]byte, 0, len(jpeg)+64)
	part = append(part, "--boundarydonotcross\r\nContent-Type: image/jpeg\r\nContent-Length: "...)
	part = strconv.AppendInt(part, int64(len(jpeg)), 10)
	part = append(part, "\r\n\r\n"...)
	part = append(part, jpeg...)
	part = append(part, "\r\n"...)

	var dead []uuid.UUID
	for id, c := range t.clients {
		if c.typ != SinkMJPEG || c.channel != channel {
			continue
		}
		if _, err := c.sink.Write(part); err != nil {
			dead = append(dead, id)
		}
	}

	for _, id := range dead {
		t.removeLocked(id)
	}
}

// SendJPEG serves a one-shot snapshot to id, then closes the connection
// regardless of write outcome (§4.E send_jpeg: "one-shot image/jpeg
// response, then close").
func (t *Table) SendJPEG(id uuid.UUID, jpeg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.clients[id]
	if !ok || c.typ != SinkJPEG {
		return nil
	}

	header := []byte("HTTP/1.1 200 OK\r\nContent-Type: image/jpeg\r\nContent-Length: " +
		strconv.Itoa(len(jpeg)) + "\r\n\r\n")
	_, err := c.sink.Write(append(header, jpeg...))
	t.removeLocked(id)
	return err
}

// SendPCM broadcasts one raw PCM frame to every PCM client (§4.E
// send_pcm). Audio is not bound to a single video channel, so delivery is
// unconditional across all PCM rows.
func (t *Table) SendPCM(frame []byte) {
	if !t.HasPCMClients() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var dead []uuid.UUID
	for id, c := range t.clients {
		if c.typ != SinkPCM {
			continue
		}
		if err := writeChunk(c.sink, frame); err != nil {
			dead = append(dead, id)
		}
	}

	for _, id := range dead {
		t.removeLocked(id)
	}
}
