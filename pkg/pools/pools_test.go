package pools

import (
	"bytes"
	"testing"
)

func TestBytePoolGetPut(t *testing.T) {
	pool := NewBytePool()

	b := pool.Get(32)
	if len(b) != 0 {
		t.Errorf("Expected length 0, got %d", len(b))
	}
	if cap(b) < 32 {
		t.Errorf("Expected capacity >= 32, got %d", cap(b))
	}

	b = append(b, []byte("boundary")...)
	pool.Put(b)

	// Oversized slices are allocated directly and never pooled
	big := pool.Get(MaxPool * 2)
	if cap(big) < MaxPool*2 {
		t.Errorf("Expected capacity >= %d, got %d", MaxPool*2, cap(big))
	}
	pool.Put(big)
}

func TestBytePoolGetSized(t *testing.T) {
	pool := NewBytePool()
	b := pool.GetSized(12)
	if len(b) != 12 {
		t.Errorf("Expected length 12, got %d", len(b))
	}
}

func TestBufferBuilderKeyEncoding(t *testing.T) {
	builder := NewBufferBuilder(SmallSize)
	defer builder.Release()

	builder.WriteByte(0x03)
	builder.WriteUint32BE(0x01020304)
	builder.WriteUint64BE(0x0102030405060708)

	got := builder.Bytes()
	want := []byte{
		0x03,
		0x01, 0x02, 0x03, 0x04,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encoded key mismatch:\ngot  %x\nwant %x", got, want)
	}
	if builder.Len() != len(want) {
		t.Errorf("Expected length %d, got %d", len(want), builder.Len())
	}
}

func TestBufferBuilderInt32BE(t *testing.T) {
	builder := NewBufferBuilder(TinySize)
	defer builder.Release()

	builder.WriteInt32BE(-1)
	if !bytes.Equal(builder.Bytes(), []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("Expected two's complement encoding of -1, got %x", builder.Bytes())
	}
}

func TestBufferBuilderReset(t *testing.T) {
	builder := NewBufferBuilder(SmallSize)
	defer builder.Release()

	builder.WriteString("marks")
	builder.Reset()
	if builder.Len() != 0 {
		t.Errorf("Expected empty builder after Reset, got length %d", builder.Len())
	}
}

func TestDefaultPools(t *testing.T) {
	b := GetBytes(16)
	PutBytes(b)

	sized := GetBytesSized(9)
	if len(sized) != 9 {
		t.Errorf("Expected length 9, got %d", len(sized))
	}
	PutBytes(sized)
}
