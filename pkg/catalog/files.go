package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/mergelog"
	"github.com/imabhichow/duvet/pkg/pools"
)

// Files registers source files and answers line/offset translation.
// Identity is content-addressed: re-loading an unchanged file reuses
// its id, a changed file is rejected with ErrFileChanged.
type Files struct {
	store *mergelog.Store
	files *mergelog.Tree
	lines *mergelog.Tree
	log   logging.Logger

	mu     sync.RWMutex
	starts map[uint32][]uint32 // file id -> line start offsets, lazily cached
}

// Load registers the file at path, reading it from disk.
func (f *Files) Load(path string) (uint32, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return f.LoadBytes(path, contents)
}

// LoadBytes registers contents under path without touching the
// filesystem.
func (f *Files) LoadBytes(path string, contents []byte) (uint32, error) {
	digest := blake2b.Sum256(contents)

	if val, found, err := f.files.Get(pathKey(path)); err != nil {
		return 0, err
	} else if found {
		id := binary.BigEndian.Uint32(val)
		stored, _, err := f.files.Get(fileRowKey(prefixDigest, id))
		if err != nil {
			return 0, err
		}
		if !bytes.Equal(stored, digest[:]) {
			return 0, fmt.Errorf("%s: %w", path, ErrFileChanged)
		}
		return id, nil
	}

	seq, err := f.store.NextSequence()
	if err != nil {
		return 0, err
	}
	id := uint32(seq)

	idVal := pools.NewBufferBuilder(4)
	idVal.WriteUint32BE(id)
	if err := f.files.Set(pathKey(path), idVal.Bytes()); err != nil {
		return 0, err
	}
	if err := f.files.Set(fileRowKey(prefixName, id), []byte(path)); err != nil {
		return 0, err
	}
	if err := f.files.Set(fileRowKey(prefixContents, id), contents); err != nil {
		return 0, err
	}
	if err := f.files.Set(fileRowKey(prefixDigest, id), digest[:]); err != nil {
		return 0, err
	}

	starts := lineStarts(contents)
	for i, off := range starts {
		row := pools.NewBufferBuilder(4)
		row.WriteUint32BE(off)
		if err := f.lines.Set(lineKey(id, uint32(i+1)), row.Bytes()); err != nil {
			return 0, err
		}
	}

	f.mu.Lock()
	f.starts[id] = starts
	f.mu.Unlock()

	f.log.Debug("file registered",
		logging.File(id),
		logging.Path(path),
		logging.Count(len(starts)))
	return id, nil
}

// ID returns the file id registered under path.
func (f *Files) ID(path string) (uint32, error) {
	val, found, err := f.files.Get(pathKey(path))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%s: %w", path, ErrFileNotFound)
	}
	return binary.BigEndian.Uint32(val), nil
}

// Path returns the path a file id was registered under.
func (f *Files) Path(id uint32) (string, error) {
	val, found, err := f.files.Get(fileRowKey(prefixName, id))
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("file %d: %w", id, ErrFileNotFound)
	}
	return string(val), nil
}

// Contents returns the registered contents of a file.
func (f *Files) Contents(id uint32) ([]byte, error) {
	val, found, err := f.files.Get(fileRowKey(prefixContents, id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("file %d: %w", id, ErrFileNotFound)
	}
	return val, nil
}

// LineOffset translates a 1-based (line, column) position into a byte
// offset. Column counts bytes within the line, 1-based.
func (f *Files) LineOffset(id, line, col uint32) (uint32, error) {
	starts, err := f.lineStartsOf(id)
	if err != nil {
		return 0, err
	}
	if line == 0 || int(line) > len(starts) || col == 0 {
		return 0, fmt.Errorf("file %d line %d col %d: %w", id, line, col, ErrBadPosition)
	}
	return starts[line-1] + col - 1, nil
}

// OffsetLine translates a byte offset into a 1-based (line, column)
// position.
func (f *Files) OffsetLine(id, offset uint32) (line, col uint32, err error) {
	starts, err := f.lineStartsOf(id)
	if err != nil {
		return 0, 0, err
	}

	// First line start strictly past the offset; its predecessor's line
	// contains it.
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
	if i == 0 {
		return 0, 0, fmt.Errorf("file %d offset %d: %w", id, offset, ErrBadPosition)
	}
	return uint32(i), offset - starts[i-1] + 1, nil
}

// LineCount returns how many lines the file has.
func (f *Files) LineCount(id uint32) (int, error) {
	starts, err := f.lineStartsOf(id)
	if err != nil {
		return 0, err
	}
	return len(starts), nil
}

// All returns every registered file id in ascending order.
func (f *Files) All() ([]uint32, error) {
	it := f.files.ScanPrefix([]byte{prefixName})
	var out []uint32
	for it.Next() {
		key := it.Key()
		if len(key) != 5 {
			return nil, fmt.Errorf("%w: file name key length %d", ErrCorruptRow, len(key))
		}
		out = append(out, binary.BigEndian.Uint32(key[1:]))
	}
	return out, it.Err()
}

func (f *Files) lineStartsOf(id uint32) ([]uint32, error) {
	f.mu.RLock()
	starts, ok := f.starts[id]
	f.mu.RUnlock()
	if ok {
		return starts, nil
	}

	it := f.lines.ScanPrefix(linePrefix(id))
	for it.Next() {
		if len(it.Value()) != 4 {
			return nil, fmt.Errorf("%w: line row length %d", ErrCorruptRow, len(it.Value()))
		}
		starts = append(starts, binary.BigEndian.Uint32(it.Value()))
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	if starts == nil {
		return nil, fmt.Errorf("file %d: %w", id, ErrFileNotFound)
	}

	f.mu.Lock()
	f.starts[id] = starts
	f.mu.Unlock()
	return starts, nil
}

// lineStarts returns the byte offset of every line start. A file always
// has at least one line; a trailing newline does not open another.
func lineStarts(contents []byte) []uint32 {
	starts := []uint32{0}
	for i, c := range contents {
		if c == '\n' && i+1 < len(contents) {
			starts = append(starts, uint32(i+1))
		}
	}
	return starts
}
