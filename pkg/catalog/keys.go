package catalog

import (
	"github.com/imabhichow/duvet/pkg/pools"
	"golang.org/x/crypto/blake2b"
)

// Row key prefixes. Integers are big-endian so lexicographic order
// equals numeric order.
//
//	files:  ['p'][path]            -> file id u32
//	        ['n'][id:4]            -> path
//	        ['c'][id:4]            -> contents
//	        ['h'][id:4]            -> blake2b-256 digest
//	lines:  [id:4][line:4]         -> line start offset u32
//	attrs:  ['f'][label:4][hash:8] -> attr row (forward)
//	        ['r'][hash:8][label:4] -> attr row (reverse)
//	runs:   ['u'][run:4]           -> uuid bytes
//	        ['v'][uuid:16]         -> run id u32
const (
	prefixPath     = 'p'
	prefixName     = 'n'
	prefixContents = 'c'
	prefixDigest   = 'h'
	prefixForward  = 'f'
	prefixReverse  = 'r'
	prefixRunID    = 'u'
	prefixRunUUID  = 'v'
)

// attrHashLen is how much of an attribute name's blake2b digest keys
// its rows. 8 bytes keeps keys short; collisions across a repo's
// handful of attribute names are not a practical concern.
const attrHashLen = 8

func pathKey(path string) []byte {
	b := pools.NewBufferBuilder(1 + len(path))
	b.WriteByte(prefixPath)
	b.WriteString(path)
	return b.Bytes()
}

func fileRowKey(prefix byte, id uint32) []byte {
	b := pools.NewBufferBuilder(5)
	b.WriteByte(prefix)
	b.WriteUint32BE(id)
	return b.Bytes()
}

func lineKey(id, line uint32) []byte {
	b := pools.NewBufferBuilder(8)
	b.WriteUint32BE(id)
	b.WriteUint32BE(line)
	return b.Bytes()
}

func linePrefix(id uint32) []byte {
	b := pools.NewBufferBuilder(4)
	b.WriteUint32BE(id)
	return b.Bytes()
}

// attrHash derives the fixed-size key fragment for an attribute name.
func attrHash(name string) []byte {
	sum := blake2b.Sum256([]byte(name))
	return sum[:attrHashLen]
}

func forwardAttrKey(label uint32, hash []byte) []byte {
	b := pools.NewBufferBuilder(5 + attrHashLen)
	b.WriteByte(prefixForward)
	b.WriteUint32BE(label)
	b.Write(hash)
	return b.Bytes()
}

func reverseAttrKey(hash []byte, label uint32) []byte {
	b := pools.NewBufferBuilder(5 + attrHashLen)
	b.WriteByte(prefixReverse)
	b.Write(hash)
	b.WriteUint32BE(label)
	return b.Bytes()
}

func forwardAttrPrefix(label uint32) []byte {
	b := pools.NewBufferBuilder(5)
	b.WriteByte(prefixForward)
	b.WriteUint32BE(label)
	return b.Bytes()
}

func reverseAttrPrefix(hash []byte) []byte {
	b := pools.NewBufferBuilder(1 + attrHashLen)
	b.WriteByte(prefixReverse)
	b.Write(hash)
	return b.Bytes()
}

func runKey(run uint32) []byte {
	b := pools.NewBufferBuilder(5)
	b.WriteByte(prefixRunID)
	b.WriteUint32BE(run)
	return b.Bytes()
}

func runUUIDKey(id []byte) []byte {
	b := pools.NewBufferBuilder(1 + len(id))
	b.WriteByte(prefixRunUUID)
	b.Write(id)
	return b.Bytes()
}
