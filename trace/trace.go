// Package trace persists packets as a snappy-framed stream of JSON records,
// one record per packet, so a relayed conversation can be replayed later.
package trace

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/golang/snappy"
	"go.uber.org/multierr"

	"p4rpc/codec"
	"p4rpc/message"
)

type Direction string

const (
	Up   Direction = "up"   // downstream to upstream
	Down Direction = "down" // upstream to downstream
)

type Record struct {
	Time    time.Time       `json:"time"`
	Session string          `json:"session"`
	Dir     Direction       `json:"dir"`
	Packet  json.RawMessage `json:"packet"` // codec.JSONCodec form
}

var jsonCodec = codec.GetCodec(codec.CodecTypeJSON)

// Decode returns the packet carried by the record.
func (r *Record) Decode() (*message.Packet, error) {
	return jsonCodec.Decode(r.Packet)
}

// Recorder is safe for concurrent use by every session of a relay.
type Recorder struct {
	mu  sync.Mutex
	w   *snappy.Writer
	enc *json.Encoder
	c   io.Closer // underlying writer, if closable
}

func NewRecorder(w io.Writer) *Recorder {
	sw := snappy.NewBufferedWriter(w)
	r := &Recorder{w: sw, enc: json.NewEncoder(sw)}
	if c, ok := w.(io.Closer); ok {
		r.c = c
	}
	return r
}

// Record appends one packet and flushes it, so a trace cut short by a crash
// still holds every packet recorded before.
func (r *Recorder) Record(session string, dir Direction, p *message.Packet) error {
	body, err := jsonCodec.Encode(p)
	if err != nil {
		return err
	}
	rec := Record{Time: time.Now(), Session: session, Dir: dir, Packet: body}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(&rec); err != nil {
		return err
	}
	return r.w.Flush()
}

// Close flushes the stream and closes the underlying writer if it is an io.Closer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.w.Close()
	if r.c != nil {
		err = multierr.Append(err, r.c.Close())
	}
	return err
}

type Reader struct {
	dec *json.Decoder
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: json.NewDecoder(snappy.NewReader(r))}
}

// Next returns io.EOF after the last record.
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReadAll returns every record up to the end of the stream.
func ReadAll(r io.Reader) ([]*Record, error) {
	tr := NewReader(r)
	var records []*Record
	for {
		rec, err := tr.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
