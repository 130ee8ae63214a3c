package simcore

import (
	"bytes"
	"compress/gzip"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"outcome.io/sim/internal/apperrors"
	"outcome.io/sim/internal/vars"
)

// snapshotHeader is spec §4.J's SnapshotHeader: everything about a Sim
// except the entity partitions themselves.
type snapshotHeader struct {
	CreatedUnix int64             `cbor:"created_unix"`
	Starter     string            `cbor:"starter"`
	Clock       uint64            `cbor:"clock"`
	EntityIdx   map[string]uint32 `cbor:"entity_idx"`
	EventQueue  []string          `cbor:"event_queue"`
	NextID      uint32            `cbor:"next_id"`
	FreeIDs     []uint32          `cbor:"free_ids"`
}

// snapshotVar is one (component, var) -> value entry of an entity's
// storage, flattened to a slice so the wire form doesn't depend on
// vars.Key being usable as a CBOR map key.
type snapshotVar struct {
	Component string   `cbor:"component"`
	Var       string   `cbor:"var"`
	Value     vars.Var `cbor:"value"`
}

// snapshotEntity is one entry of a partition (spec §4.J "each part is a
// serialized entity partition (id -> Entity)").
type snapshotEntity struct {
	ID         uint32        `cbor:"id"`
	Name       string        `cbor:"name"`
	Components []string      `cbor:"components"`
	Vars       []snapshotVar `cbor:"vars"`
}

// snapshotDoc is the full wire document: header plus parts[], each part
// itself independently CBOR-encoded so a distributed snapshot can append
// one part per worker without re-decoding the others (spec §4.J).
type snapshotDoc struct {
	Header snapshotHeader `cbor:"header"`
	Parts  [][]byte       `cbor:"parts"`
}

// SaveSnapshot serializes the Sim's full state to bytes (spec §4.F
// "save_snapshot(name, compress)"). With compress, the result is
// gzip-wrapped; LoadSnapshot auto-detects either form.
func (s *Sim) SaveSnapshot(name string, compress bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part := make([]snapshotEntity, 0, len(s.entities))
	for id, ent := range s.entities {
		se := snapshotEntity{ID: id, Name: ent.name, Components: ent.Components()}
		ent.storage.ForEach(func(k vars.Key, v vars.Var) {
			se.Vars = append(se.Vars, snapshotVar{Component: k.Component, Var: k.Var, Value: v})
		})
		part = append(part, se)
	}
	partBytes, err := cbor.Marshal(part)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFailedReadingSnapshot, "encode entity partition", 500)
	}

	doc := snapshotDoc{
		Header: snapshotHeader{
			CreatedUnix: time.Now().Unix(),
			Starter:     name,
			Clock:       s.clock,
			EntityIdx:   cloneIdx(s.entityIdx),
			EventQueue:  append([]string(nil), s.eventQueue...),
			NextID:      s.nextID,
			FreeIDs:     append([]uint32(nil), s.freeIDs...),
		},
		Parts: [][]byte{partBytes},
	}

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

// LoadSnapshot replaces the Sim's clock, event queue, id pool and entity
// set with the contents of data (spec §4.F "load_snapshot(name)"). It
// tries gzip decompression first, falling back to the raw encoding on
// failure (spec §4.J "reader tries decoding with compression enabled
// first; on failure retries without").
func (s *Sim) LoadSnapshot(data []byte) error {
	raw, err := maybeGunzip(data)
	if err != nil {
		return apperrors.CorruptSnapshot("")
	}

	var doc snapshotDoc
	if err := cbor.Unmarshal(raw, &doc); err != nil {
		return apperrors.CorruptSnapshot("")
	}

	entities := make(map[uint32]*Entity)
	for _, partBytes := range doc.Parts {
		var part []snapshotEntity
		if err := cbor.Unmarshal(partBytes, &part); err != nil {
			return apperrors.CorruptSnapshot("")
		}
		for _, se := range part {
			ent := newEntity(se.ID, se.Name)
			ent.componentOrder = append([]string(nil), se.Components...)
			for _, c := range se.Components {
				ent.components[c] = true
			}
			for _, sv := range se.Vars {
				ent.storage.Init(vars.Key{Component: sv.Component, Var: sv.Var}, sv.Value)
			}
			entities[se.ID] = ent
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = entities
	s.entityIdx = cloneIdx(doc.Header.EntityIdx)
	s.eventQueue = append([]string(nil), doc.Header.EventQueue...)
	s.clock = doc.Header.Clock
	s.nextID = doc.Header.NextID
	s.freeIDs = append([]uint32(nil), doc.Header.FreeIDs...)
	return nil
}

func cloneIdx(m map[string]uint32) map[string]uint32 {
	out := make(map[string]uint32, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// maybeGunzip returns data decompressed if it looks like a gzip stream,
// or data unchanged otherwise.
func maybeGunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data, nil
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, err
	}
	return out, nil
}
