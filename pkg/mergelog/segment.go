package mergelog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/mmap"

	"github.com/imabhichow/duvet/pkg/logging"
)

// Segment files are full checkpoints of every tree, written on Flush.
// Layout: [Magic:4][Version:1][TreeCount:4] then per tree
// [NameLen:2][Name][EntryCount:4] and per entry [KeyLen:4][Key][ValLen:4][Val],
// closed by [Checksum:4] over everything after the magic. All integers
// big-endian. The newest valid segment is loaded on Open through a
// memory-mapped reader; older segments are only kept until the next
// successful checkpoint.

const (
	segmentMagic   = "DVSG"
	segmentVersion = 1
	segmentExt     = ".seg"
)

type kvPair struct {
	key string
	val []byte
}

type treeSnapshot struct {
	name    string
	entries []kvPair
}

// crcWriter tees writes into a running checksum.
type crcWriter struct {
	w   io.Writer
	crc hash.Hash32
}

func (c *crcWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.crc.Write(p[:n])
	return n, err
}

// writeSegment writes a checkpoint atomically (temp file, then rename)
// and returns its path.
func writeSegment(dir string, id uint64, trees []treeSnapshot) (string, error) {
	name := fmt.Sprintf("segment-%08d%s", id, segmentExt)
	path := filepath.Join(dir, name)
	tmpPath := path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create segment file: %w", err)
	}

	buffered := bufio.NewWriter(file)
	if _, err := buffered.WriteString(segmentMagic); err != nil {
		file.Close()
		return "", err
	}

	cw := &crcWriter{w: buffered, crc: crc32.NewIEEE()}

	if err := cw.writeSegmentBody(trees); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return "", err
	}

	if err := binary.Write(buffered, binary.BigEndian, cw.crc.Sum32()); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return "", err
	}

	if err := buffered.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename segment file: %w", err)
	}

	return path, nil
}

func (c *crcWriter) writeSegmentBody(trees []treeSnapshot) error {
	var scratch [8]byte

	scratch[0] = segmentVersion
	if _, err := c.Write(scratch[:1]); err != nil {
		return err
	}

	binary.BigEndian.PutUint32(scratch[:4], uint32(len(trees)))
	if _, err := c.Write(scratch[:4]); err != nil {
		return err
	}

	for _, tree := range trees {
		binary.BigEndian.PutUint16(scratch[:2], uint16(len(tree.name)))
		if _, err := c.Write(scratch[:2]); err != nil {
			return err
		}
		if _, err := c.Write([]byte(tree.name)); err != nil {
			return err
		}

		binary.BigEndian.PutUint32(scratch[:4], uint32(len(tree.entries)))
		if _, err := c.Write(scratch[:4]); err != nil {
			return err
		}

		for _, e := range tree.entries {
			binary.BigEndian.PutUint32(scratch[:4], uint32(len(e.key)))
			if _, err := c.Write(scratch[:4]); err != nil {
				return err
			}
			if _, err := c.Write([]byte(e.key)); err != nil {
				return err
			}
			binary.BigEndian.PutUint32(scratch[:4], uint32(len(e.val)))
			if _, err := c.Write(scratch[:4]); err != nil {
				return err
			}
			if _, err := c.Write(e.val); err != nil {
				return err
			}
		}
	}
	return nil
}

// readSegment loads one segment through a memory-mapped reader,
// verifying magic, version and checksum before handing entries to apply.
func readSegment(path string, apply func(tree string, key, val []byte) error) error {
	reader, err := mmap.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	size := int64(reader.Len())
	if size < int64(len(segmentMagic))+1+4+4 {
		return fmt.Errorf("%w: file too small (%d bytes)", ErrCorruptSegment, size)
	}

	magic := make([]byte, len(segmentMagic))
	if _, err := reader.ReadAt(magic, 0); err != nil {
		return err
	}
	if string(magic) != segmentMagic {
		return fmt.Errorf("%w: bad magic %q", ErrCorruptSegment, magic)
	}

	trailer := make([]byte, 4)
	if _, err := reader.ReadAt(trailer, size-4); err != nil {
		return err
	}
	wantCRC := binary.BigEndian.Uint32(trailer)

	bodyLen := size - int64(len(segmentMagic)) - 4
	section := io.NewSectionReader(reader, int64(len(segmentMagic)), bodyLen)
	crc := crc32.NewIEEE()
	body := bufio.NewReader(io.TeeReader(section, crc))

	version, err := body.ReadByte()
	if err != nil {
		return err
	}
	if version != segmentVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptSegment, version)
	}

	var treeCount uint32
	if err := binary.Read(body, binary.BigEndian, &treeCount); err != nil {
		return err
	}

	type entry struct {
		tree string
		key  []byte
		val  []byte
	}
	// Entries are buffered until the checksum verifies so a corrupt
	// segment never half-populates the store.
	var entries []entry

	for t := uint32(0); t < treeCount; t++ {
		var nameLen uint16
		if err := binary.Read(body, binary.BigEndian, &nameLen); err != nil {
			return err
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(body, nameBuf); err != nil {
			return err
		}
		treeName := string(nameBuf)

		var entryCount uint32
		if err := binary.Read(body, binary.BigEndian, &entryCount); err != nil {
			return err
		}

		for i := uint32(0); i < entryCount; i++ {
			var keyLen uint32
			if err := binary.Read(body, binary.BigEndian, &keyLen); err != nil {
				return err
			}
			if int64(keyLen) > bodyLen {
				return fmt.Errorf("%w: key length %d exceeds file size", ErrCorruptSegment, keyLen)
			}
			key := make([]byte, keyLen)
			if _, err := io.ReadFull(body, key); err != nil {
				return err
			}

			var valLen uint32
			if err := binary.Read(body, binary.BigEndian, &valLen); err != nil {
				return err
			}
			if int64(valLen) > bodyLen {
				return fmt.Errorf("%w: value length %d exceeds file size", ErrCorruptSegment, valLen)
			}
			val := make([]byte, valLen)
			if _, err := io.ReadFull(body, val); err != nil {
				return err
			}

			entries = append(entries, entry{tree: treeName, key: key, val: val})
		}
	}

	// Drain any padding the reader did not consume before checking
	if _, err := io.Copy(io.Discard, body); err != nil {
		return err
	}
	if crc.Sum32() != wantCRC {
		return fmt.Errorf("%w: checksum mismatch", ErrCorruptSegment)
	}

	for _, e := range entries {
		if err := apply(e.tree, e.key, e.val); err != nil {
			return err
		}
	}
	return nil
}

// segmentPaths returns segment files in the directory, newest first.
func segmentPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), segmentExt) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// segmentID extracts the numeric id from a segment path.
func segmentID(path string) uint64 {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, segmentExt)
	base = strings.TrimPrefix(base, "segment-")
	id, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// loadNewestSegment loads the most recent valid segment, falling back to
// older ones when the newest fails verification. Returns the id of the
// loaded segment, or 0 if none.
func loadNewestSegment(dir string, apply func(tree string, key, val []byte) error, log logging.Logger) (uint64, error) {
	paths, err := segmentPaths(dir)
	if err != nil {
		return 0, err
	}

	for _, path := range paths {
		err := readSegment(path, apply)
		if err == nil {
			return segmentID(path), nil
		}
		log.Warn("skipping unreadable segment",
			logging.Component("mergelog"),
			logging.Path(path),
			logging.Error(err))
	}
	return 0, nil
}

// removeSegmentsBefore deletes segments older than keepID.
func removeSegmentsBefore(dir string, keepID uint64, log logging.Logger) {
	paths, err := segmentPaths(dir)
	if err != nil {
		return
	}
	for _, path := range paths {
		if segmentID(path) < keepID {
			if err := os.Remove(path); err != nil {
				log.Warn("failed to remove old segment",
					logging.Component("mergelog"),
					logging.Path(path),
					logging.Error(err))
			}
		}
	}
}

// diskUsage sums the sizes of files under dir.
func diskUsage(dir string) int64 {
	var total int64
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
