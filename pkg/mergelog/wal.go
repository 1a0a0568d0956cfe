package mergelog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/metrics"
)

// walOp identifies the operation a log record replays as.
type walOp byte

const (
	opSet   walOp = 1
	opMerge walOp = 2

	// maxWALRecordLen bounds a record's compressed payload so a corrupt
	// length field cannot trigger a huge allocation during replay.
	maxWALRecordLen = 256 << 20
)

// walRecord is one replayable log record.
type walRecord struct {
	Seq  uint64
	Op   walOp
	Tree string
	Key  []byte
	Val  []byte
}

// walWriter is the store's write-ahead log. Records are framed as
// [Seq:8][Op:1][DataLen:4][Data:N][Checksum:4][Timestamp:8] big-endian,
// with Data snappy-compressed and the checksum taken over the
// compressed bytes.
type walWriter struct {
	file    *os.File
	writer  *bufio.Writer
	seq     uint64
	path    string
	sync    bool
	log     logging.Logger
	metrics *metrics.Registry
	mu      sync.Mutex
}

func openWAL(path string, syncWrites bool, log logging.Logger, m *metrics.Registry) (*walWriter, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	return &walWriter{
		file:    file,
		writer:  bufio.NewWriter(file),
		path:    path,
		sync:    syncWrites,
		log:     log,
		metrics: m,
	}, nil
}

// encodePayload serializes (tree, key, value) into a record payload:
// [TreeLen:2][Tree][KeyLen:4][Key][ValLen:4][Val].
func encodePayload(tree string, key, val []byte) []byte {
	buf := make([]byte, 0, 2+len(tree)+4+len(key)+4+len(val))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(tree)))
	buf = append(buf, tree...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(key)))
	buf = append(buf, key...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(val)))
	buf = append(buf, val...)
	return buf
}

func decodePayload(data []byte) (tree string, key, val []byte, err error) {
	if len(data) < 2 {
		return "", nil, nil, fmt.Errorf("payload too short: %d bytes", len(data))
	}
	treeLen := int(binary.BigEndian.Uint16(data))
	data = data[2:]
	if len(data) < treeLen+4 {
		return "", nil, nil, fmt.Errorf("payload truncated in tree name")
	}
	tree = string(data[:treeLen])
	data = data[treeLen:]

	keyLen := int(binary.BigEndian.Uint32(data))
	data = data[4:]
	if len(data) < keyLen+4 {
		return "", nil, nil, fmt.Errorf("payload truncated in key")
	}
	key = data[:keyLen]
	data = data[keyLen:]

	valLen := int(binary.BigEndian.Uint32(data))
	data = data[4:]
	if len(data) < valLen {
		return "", nil, nil, fmt.Errorf("payload truncated in value")
	}
	val = data[:valLen]
	return tree, key, val, nil
}

// Append writes one record and flushes it to the OS.
func (w *walWriter) Append(op walOp, tree string, key, val []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++

	payload := encodePayload(tree, key, val)
	compressed := snappy.Encode(nil, payload)

	if err := binary.Write(w.writer, binary.BigEndian, w.seq); err != nil {
		return err
	}
	if err := w.writer.WriteByte(byte(op)); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := w.writer.Write(compressed); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.BigEndian, crc32.ChecksumIEEE(compressed)); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.BigEndian, time.Now().Unix()); err != nil {
		return err
	}

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL: %w", err)
	}
	if w.sync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync WAL: %w", err)
		}
	}

	if w.metrics != nil {
		w.metrics.RecordWALAppend(len(payload), len(compressed))
	}

	return nil
}

// Replay reads every valid record from the start of the log and hands it
// to apply. A corrupt tail stops replay; the file is truncated to the
// last valid record so later appends extend a clean log. Returns the
// number of records recovered.
func (w *walWriter) Replay(apply func(rec walRecord) error) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	reader := bufio.NewReader(w.file)
	recovered := 0
	validOffset := int64(0)

	for {
		rec, recLen, err := readWALRecord(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			w.log.Warn("WAL corruption detected, truncating tail",
				logging.Component("mergelog"),
				logging.Count(recovered),
				logging.Error(err))
			if terr := w.file.Truncate(validOffset); terr != nil {
				return recovered, fmt.Errorf("failed to truncate corrupt WAL: %w", terr)
			}
			break
		}

		if err := apply(*rec); err != nil {
			return recovered, fmt.Errorf("failed to replay record seq=%d: %w", rec.Seq, err)
		}
		w.seq = rec.Seq
		validOffset += recLen
		recovered++
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return recovered, err
	}
	return recovered, nil
}

// readWALRecord decodes one framed record, verifying the checksum and
// decompressing the payload. Returns the record and its on-disk length.
func readWALRecord(reader *bufio.Reader) (*walRecord, int64, error) {
	var seq uint64
	if err := binary.Read(reader, binary.BigEndian, &seq); err != nil {
		return nil, 0, err
	}

	opByte, err := reader.ReadByte()
	if err != nil {
		return nil, 0, err
	}

	var dataLen uint32
	if err := binary.Read(reader, binary.BigEndian, &dataLen); err != nil {
		return nil, 0, err
	}
	if dataLen > maxWALRecordLen {
		return nil, 0, fmt.Errorf("record seq=%d length %d exceeds limit", seq, dataLen)
	}

	compressed := make([]byte, dataLen)
	if _, err := io.ReadFull(reader, compressed); err != nil {
		return nil, 0, err
	}

	var checksum uint32
	if err := binary.Read(reader, binary.BigEndian, &checksum); err != nil {
		return nil, 0, err
	}
	if crc32.ChecksumIEEE(compressed) != checksum {
		return nil, 0, fmt.Errorf("checksum mismatch for record seq=%d", seq)
	}

	var timestamp int64
	if err := binary.Read(reader, binary.BigEndian, &timestamp); err != nil {
		return nil, 0, err
	}

	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decompress record seq=%d: %w", seq, err)
	}

	tree, key, val, err := decodePayload(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode record seq=%d: %w", seq, err)
	}

	recLen := int64(8 + 1 + 4 + int64(dataLen) + 4 + 8)
	return &walRecord{
		Seq:  seq,
		Op:   walOp(opByte),
		Tree: tree,
		Key:  key,
		Val:  val,
	}, recLen, nil
}

// Truncate resets the log after a successful checkpoint.
func (w *walWriter) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL before truncate: %w", err)
	}

	// Create the replacement before closing the old handle
	newFile, err := os.OpenFile(w.path+".new", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create new WAL file: %w", err)
	}

	closeErr := w.file.Close()

	if err := os.Rename(w.path+".new", w.path); err != nil {
		newFile.Close()
		// Reopen the old file to keep a usable handle
		if oldFile, reopenErr := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644); reopenErr == nil {
			w.file = oldFile
			w.writer = bufio.NewWriter(oldFile)
		}
		return fmt.Errorf("failed to rename WAL file: %w (close error: %v)", err, closeErr)
	}

	w.file = newFile
	w.writer = bufio.NewWriter(newFile)
	w.seq = 0

	if closeErr != nil {
		w.log.Warn("failed to close old WAL file during truncate",
			logging.Component("mergelog"),
			logging.Error(closeErr))
	}

	return nil
}

// Close flushes and closes the log file.
func (w *walWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}
