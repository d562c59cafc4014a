package index

import (
	"encoding/binary"
	"os"
	"path/filepath"

	pkgerrors "annie/pkg/errors"
	"annie/pkg/logger"

	"github.com/klauspost/compress/zstd"
	"github.com/twmb/murmur3"
	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot file layout, little endian:
//
//	magic    [4]byte "ANNI"
//	version  uint16
//	flags    uint16
//	bodyLen  uint64
//	checksum uint64  murmur3 of the stored body
//	body     msgpack(snapshot), zstd compressed when flagZstd is set
const (
	snapshotMagic          = "ANNI"
	snapshotVersion uint16 = 1
	snapshotHeader         = 24

	flagZstd uint16 = 1 << 0
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<34))
)

type snapshotEntry struct {
	ID     int64     `msgpack:"id"`
	Vector []float32 `msgpack:"v"`
}

type snapshot struct {
	Dimension int             `msgpack:"dim"`
	Space     SpaceType       `msgpack:"space"`
	P         float32         `msgpack:"p"`
	Entries   []snapshotEntry `msgpack:"entries"`
}

func (f *FlatIndex) snapshot() *snapshot {
	s := &snapshot{
		Dimension: f.dim,
		Space:     f.metric.Space,
		P:         f.metric.P,
		Entries:   make([]snapshotEntry, len(f.entries)),
	}
	for i, e := range f.entries {
		s.Entries[i] = snapshotEntry{ID: e.id, Vector: e.vector}
	}
	return s
}

// flatIndex rebuilds an index, recomputing cached norms.
func (s *snapshot) flatIndex() (*FlatIndex, error) {
	if s.Dimension <= 0 {
		return nil, pkgerrors.Corrupt("restore", "dimension %d", s.Dimension)
	}
	metric, err := NewMetric(s.Space, s.P)
	if err != nil {
		return nil, pkgerrors.Corrupt("restore", "metric: %v", err)
	}
	f := &FlatIndex{dim: s.Dimension, metric: metric}
	vectors := make([][]float32, len(s.Entries))
	ids := make([]int64, len(s.Entries))
	for i, e := range s.Entries {
		if len(e.Vector) != s.Dimension {
			return nil, pkgerrors.Corrupt("restore", "entry %d has %d values, want %d", i, len(e.Vector), s.Dimension)
		}
		vectors[i], ids[i] = e.Vector, e.ID
	}
	if err := f.Add(vectors, ids); err != nil {
		return nil, pkgerrors.Corrupt("restore", "%v", err)
	}
	return f, nil
}

func encodeSnapshot(s *snapshot) ([]byte, error) {
	raw, err := msgpack.Marshal(s)
	if err != nil {
		return nil, pkgerrors.Wrap("save", err)
	}
	body := zstdEncoder.EncodeAll(raw, nil)

	buf := make([]byte, snapshotHeader, snapshotHeader+len(body))
	copy(buf[0:4], snapshotMagic)
	binary.LittleEndian.PutUint16(buf[4:6], snapshotVersion)
	binary.LittleEndian.PutUint16(buf[6:8], flagZstd)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(body)))
	binary.LittleEndian.PutUint64(buf[16:24], murmur3.Sum64(body))
	return append(buf, body...), nil
}

// decodeSnapshot checks the header before touching the body so that files of
// another version never produce a partially filled index.
func decodeSnapshot(data []byte) (*snapshot, error) {
	if len(data) < snapshotHeader {
		return nil, pkgerrors.Corrupt("restore", "file too short: %d bytes", len(data))
	}
	if string(data[0:4]) != snapshotMagic {
		return nil, pkgerrors.Corrupt("restore", "bad magic %q", data[0:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != snapshotVersion {
		return nil, pkgerrors.Corrupt("restore", "unsupported version %d", v)
	}
	flags := binary.LittleEndian.Uint16(data[6:8])
	if flags&^flagZstd != 0 {
		return nil, pkgerrors.Corrupt("restore", "unknown flags %#x", flags)
	}
	body := data[snapshotHeader:]
	if n := binary.LittleEndian.Uint64(data[8:16]); n != uint64(len(body)) {
		return nil, pkgerrors.Corrupt("restore", "body length %d, header says %d", len(body), n)
	}
	if sum := binary.LittleEndian.Uint64(data[16:24]); sum != murmur3.Sum64(body) {
		return nil, pkgerrors.Corrupt("restore", "checksum mismatch")
	}

	raw := body
	if flags&flagZstd != 0 {
		var err error
		if raw, err = zstdDecoder.DecodeAll(body, nil); err != nil {
			return nil, pkgerrors.Corrupt("restore", "decompress: %v", err)
		}
	}
	var s snapshot
	if err := msgpack.Unmarshal(raw, &s); err != nil {
		return nil, pkgerrors.Corrupt("restore", "decode: %v", err)
	}
	return &s, nil
}

// writeSnapshot replaces the file at path atomically.
func writeSnapshot(path string, s *snapshot) error {
	data, err := encodeSnapshot(s)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return pkgerrors.Storage("save", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return pkgerrors.Storage("save", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return pkgerrors.Storage("save", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return pkgerrors.Storage("save", err)
	}

	logger.Debug("Saved snapshot", "path", path, "entries", len(s.Entries), "bytes", len(data))
	return nil
}

func readSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Storage("restore", err)
	}
	s, err := decodeSnapshot(data)
	if err != nil {
		logger.Warn("Rejected snapshot", "path", path, "error", err)
		return nil, err
	}
	logger.Debug("Read snapshot", "path", path, "entries", len(s.Entries))
	return s, nil
}
