package organizer

import (
	"bytes"
	"compress/gzip"
	"time"

	"github.com/fxamacker/cbor/v2"

	"outcome.io/sim/internal/apperrors"
)

// snapshotHeader mirrors simcore's per-process header but over the
// organizer's own bookkeeping: it has no freeIDs, since the organizer
// never reclaims an id once a worker owns it (spec §4.H names no
// destroy_entity operation at the central tier).
type snapshotHeader struct {
	CreatedUnix int64             `cbor:"created_unix"`
	Starter     string            `cbor:"starter"`
	Clock       uint64            `cbor:"clock"`
	EntityIdx   map[string]uint32 `cbor:"entity_idx"`
	EventQueue  []string          `cbor:"event_queue"`
	NextID      uint32            `cbor:"next_id"`
}

// snapshotDoc is the organizer's assembled multi-worker snapshot: one
// header plus one part per replying worker (spec §4.J "parts[] ... each
// part is a serialized entity partition").
type snapshotDoc struct {
	Header snapshotHeader `cbor:"header"`
	Parts  [][]byte       `cbor:"parts"`
}

// buildHeader snapshots the organizer's own state. Caller must hold o.mu.
func (o *Organizer) buildHeader(name string) snapshotHeader {
	idx := make(map[string]uint32, len(o.entityIdx))
	for k, v := range o.entityIdx {
		idx[k] = v
	}
	return snapshotHeader{
		CreatedUnix: time.Now().Unix(),
		Starter:     name,
		Clock:       o.clock,
		EntityIdx:   idx,
		EventQueue:  append([]string(nil), o.eventQueue...),
		NextID:      o.nextID,
	}
}

func encodeSnapshotDoc(doc snapshotDoc, compress bool) ([]byte, error) {
	data, err := cbor.Marshal(doc)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFailedReadingSnapshot, "encode snapshot", 500)
	}
	if !compress {
		return data, nil
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFailedReadingSnapshot, "compress snapshot", 500)
	}
	if err := gw.Close(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFailedReadingSnapshot, "compress snapshot", 500)
	}
	return buf.Bytes(), nil
}
