package regions

import (
	"encoding/binary"
	"fmt"

	"github.com/imabhichow/duvet/pkg/pools"
)

// boundaryRecordSize is the fixed size of one stored boundary record:
// {label u32, end u32}, big-endian.
const boundaryRecordSize = 8

// encodeBoundary serializes one boundary record. A mark writes the same
// record at its start key and its end key; whether a record opens or
// closes is derived at sweep time from the key's offset (end > offset
// opens, end == offset closes).
func encodeBoundary(label Label, end uint32) []byte {
	b := pools.NewBufferBuilder(boundaryRecordSize)
	b.WriteUint32BE(uint32(label))
	b.WriteUint32BE(end)
	return b.Bytes()
}

// decodeBoundary reads one 8-byte boundary record.
func decodeBoundary(rec []byte) (Label, uint32) {
	return Label(binary.BigEndian.Uint32(rec)), binary.BigEndian.Uint32(rec[4:])
}

// encodeRegionValue serializes a consolidated row: end offset followed
// by the sorted label array, all u32 big-endian. The same value is
// written to the regions row and to every reference fan-out row, so
// re-finalizing an unchanged scope is byte-identical.
func encodeRegionValue(end uint32, labels []Label) []byte {
	b := pools.NewBufferBuilder(4 + 4*len(labels))
	b.WriteUint32BE(end)
	for _, l := range labels {
		b.WriteUint32BE(uint32(l))
	}
	return b.Bytes()
}

func decodeRegionValue(val []byte) (uint32, []Label, error) {
	if len(val) < 8 || len(val)%4 != 0 {
		return 0, nil, fmt.Errorf("%w: region value length %d", ErrCorruptRecord, len(val))
	}
	end := binary.BigEndian.Uint32(val)
	labels := make([]Label, 0, (len(val)-4)/4)
	for off := 4; off < len(val); off += 4 {
		labels = append(labels, Label(binary.BigEndian.Uint32(val[off:])))
	}
	return end, labels, nil
}

// encodeScopeState serializes a scope's finalize row. Only the region
// count is stored; anything time-dependent would break byte-identical
// re-finalization.
func encodeScopeState(regionCount int) []byte {
	b := pools.NewBufferBuilder(4)
	b.WriteUint32BE(uint32(regionCount))
	return b.Bytes()
}

func decodeScopeState(val []byte) (int, error) {
	if len(val) != 4 {
		return 0, fmt.Errorf("%w: scope state length %d", ErrCorruptRecord, len(val))
	}
	return int(binary.BigEndian.Uint32(val)), nil
}
