package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/imabhichow/duvet/pkg/mergelog"
	"github.com/imabhichow/duvet/pkg/pools"
)

// Well-known attribute names shared by producers and consumers.
const (
	// AttrType classifies an entity: "citation", "test", "function",
	// "coverage", "exception", "todo".
	AttrType = "type"
	// AttrName carries a human-readable name (function name, test name).
	AttrName = "name"
	// AttrDocument and AttrSection locate a cited requirement.
	AttrDocument = "document"
	AttrSection  = "section"
	// AttrExecutions carries a coverage block's execution count.
	AttrExecutions = "executions"
)

// Entities allocates labels and stores their attributes. Attribute rows
// are keyed both (label, attr) and (attr, label), so both "what is this
// label" and "which labels have this attribute" are range scans.
type Entities struct {
	store *mergelog.Store
	attrs *mergelog.Tree
}

// Create allocates a fresh label.
func (e *Entities) Create() (uint32, error) {
	seq, err := e.store.NextSequence()
	if err != nil {
		return 0, err
	}
	return uint32(seq), nil
}

// SetAttr stores an attribute on a label, overwriting any previous
// value under the same name.
func (e *Entities) SetAttr(label uint32, name, value string) error {
	hash := attrHash(name)
	row := encodeAttrRow(name, value)

	if err := e.attrs.Set(forwardAttrKey(label, hash), row); err != nil {
		return err
	}
	return e.attrs.Set(reverseAttrKey(hash, label), row)
}

// Attr returns the value of one attribute on a label.
func (e *Entities) Attr(label uint32, name string) (string, bool, error) {
	val, found, err := e.attrs.Get(forwardAttrKey(label, attrHash(name)))
	if err != nil || !found {
		return "", false, err
	}
	_, value, err := decodeAttrRow(val)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Attrs returns every attribute stored on a label.
func (e *Entities) Attrs(label uint32) (map[string]string, error) {
	it := e.attrs.ScanPrefix(forwardAttrPrefix(label))
	out := make(map[string]string)
	for it.Next() {
		name, value, err := decodeAttrRow(it.Value())
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, it.Err()
}

// WithAttr returns every label carrying the named attribute, ascending.
func (e *Entities) WithAttr(name string) ([]uint32, error) {
	prefix := reverseAttrPrefix(attrHash(name))
	it := e.attrs.ScanPrefix(prefix)

	var out []uint32
	for it.Next() {
		key := it.Key()
		if len(key) != len(prefix)+4 {
			return nil, fmt.Errorf("%w: reverse attr key length %d", ErrCorruptRow, len(key))
		}
		out = append(out, binary.BigEndian.Uint32(key[len(prefix):]))
	}
	return out, it.Err()
}

// WithAttrValue returns every label whose named attribute equals value.
func (e *Entities) WithAttrValue(name, value string) ([]uint32, error) {
	prefix := reverseAttrPrefix(attrHash(name))
	it := e.attrs.ScanPrefix(prefix)

	var out []uint32
	for it.Next() {
		key := it.Key()
		if len(key) != len(prefix)+4 {
			return nil, fmt.Errorf("%w: reverse attr key length %d", ErrCorruptRow, len(key))
		}
		_, v, err := decodeAttrRow(it.Value())
		if err != nil {
			return nil, err
		}
		if v == value {
			out = append(out, binary.BigEndian.Uint32(key[len(prefix):]))
		}
	}
	return out, it.Err()
}

// encodeAttrRow serializes an attribute as [nameLen:2][name][value].
// Keys carry only the name's hash, so the row keeps the name readable.
func encodeAttrRow(name, value string) []byte {
	b := pools.NewBufferBuilder(2 + len(name) + len(value))
	b.WriteByte(byte(len(name) >> 8))
	b.WriteByte(byte(len(name)))
	b.WriteString(name)
	b.WriteString(value)
	return b.Bytes()
}

func decodeAttrRow(row []byte) (name, value string, err error) {
	if len(row) < 2 {
		return "", "", fmt.Errorf("%w: attr row length %d", ErrCorruptRow, len(row))
	}
	n := int(row[0])<<8 | int(row[1])
	if len(row) < 2+n {
		return "", "", fmt.Errorf("%w: attr row name length %d", ErrCorruptRow, n)
	}
	return string(row[2 : 2+n]), string(row[2+n:]), nil
}
