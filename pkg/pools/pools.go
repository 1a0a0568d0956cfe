// Package pools provides object pooling for reducing GC pressure.
//
// This package contains pool implementations for the types the engine
// allocates most often:
//
//   - BytePool: Size-class based byte slice pooling
//   - BufferBuilder: Efficient key and record construction with pooling
package pools
