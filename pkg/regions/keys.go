package regions

import (
	"encoding/binary"
	"fmt"

	"github.com/imabhichow/duvet/pkg/pools"
)

// Key layouts, all integers big-endian so lexicographic byte order
// equals numeric order:
//
//	marks, regions:  [file:4][run:4][offset:4]
//	refs:            [label:4][file:4][run:4][start:4]
//	scopes:          [file:4][run:4]

const (
	scopeKeyLen  = 8
	offsetKeyLen = 12
	refKeyLen    = 16
)

func scopeOffsetKey(scope Scope, offset uint32) []byte {
	b := pools.NewBufferBuilder(offsetKeyLen)
	b.WriteUint32BE(uint32(scope.File))
	b.WriteUint32BE(uint32(scope.Run))
	b.WriteUint32BE(offset)
	return b.Bytes()
}

func scopeKey(scope Scope) []byte {
	b := pools.NewBufferBuilder(scopeKeyLen)
	b.WriteUint32BE(uint32(scope.File))
	b.WriteUint32BE(uint32(scope.Run))
	return b.Bytes()
}

func refKey(label Label, scope Scope, start uint32) []byte {
	b := pools.NewBufferBuilder(refKeyLen)
	b.WriteUint32BE(uint32(label))
	b.WriteUint32BE(uint32(scope.File))
	b.WriteUint32BE(uint32(scope.Run))
	b.WriteUint32BE(start)
	return b.Bytes()
}

func refPrefix(label Label) []byte {
	b := pools.NewBufferBuilder(4)
	b.WriteUint32BE(uint32(label))
	return b.Bytes()
}

func parseScopeOffsetKey(key []byte) (Scope, uint32, error) {
	if len(key) != offsetKeyLen {
		return Scope{}, 0, fmt.Errorf("%w: offset key length %d", ErrCorruptRecord, len(key))
	}
	scope := Scope{
		File: FileID(binary.BigEndian.Uint32(key)),
		Run:  RunID(binary.BigEndian.Uint32(key[4:])),
	}
	return scope, binary.BigEndian.Uint32(key[8:]), nil
}

func parseRefKey(key []byte) (Label, Scope, uint32, error) {
	if len(key) != refKeyLen {
		return 0, Scope{}, 0, fmt.Errorf("%w: reference key length %d", ErrCorruptRecord, len(key))
	}
	label := Label(binary.BigEndian.Uint32(key))
	scope := Scope{
		File: FileID(binary.BigEndian.Uint32(key[4:])),
		Run:  RunID(binary.BigEndian.Uint32(key[8:])),
	}
	return label, scope, binary.BigEndian.Uint32(key[12:]), nil
}

func parseScopeKey(key []byte) (Scope, error) {
	if len(key) != scopeKeyLen {
		return Scope{}, fmt.Errorf("%w: scope key length %d", ErrCorruptRecord, len(key))
	}
	return Scope{
		File: FileID(binary.BigEndian.Uint32(key)),
		Run:  RunID(binary.BigEndian.Uint32(key[4:])),
	}, nil
}
