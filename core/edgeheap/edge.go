package edgeheap

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NodeID identifies a node record by its physical position in a node file.
type NodeID struct {
	PageID uint64
	Slot   uint16
}

func (n NodeID) String() string {
	return fmt.Sprintf("(%d:%d)", n.PageID, n.Slot)
}

// Edge is the record stored on data pages. Payload is opaque to the heap file.
type Edge struct {
	Source      NodeID
	Destination NodeID
	Label       string
	Payload     []byte
}

// Encoded layout (little-endian):
//
//	[ src page u64 ][ src slot u16 ][ dst page u64 ][ dst slot u16 ]
//	[ label len u16 ][ label ][ payload ... ]
const edgeHeaderSize = 8 + 2 + 8 + 2 + 2

// EncodedSize is the number of bytes Encode produces.
func (e *Edge) EncodedSize() int {
	return edgeHeaderSize + len(e.Label) + len(e.Payload)
}

// Encode serializes the edge.
func (e *Edge) Encode() ([]byte, error) {
	if len(e.Label) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: label is %d bytes", ErrCorruptEdge, len(e.Label))
	}
	buf := make([]byte, e.EncodedSize())
	binary.LittleEndian.PutUint64(buf[0:], e.Source.PageID)
	binary.LittleEndian.PutUint16(buf[8:], e.Source.Slot)
	binary.LittleEndian.PutUint64(buf[10:], e.Destination.PageID)
	binary.LittleEndian.PutUint16(buf[18:], e.Destination.Slot)
	binary.LittleEndian.PutUint16(buf[20:], uint16(len(e.Label)))
	n := copy(buf[edgeHeaderSize:], e.Label)
	copy(buf[edgeHeaderSize+n:], e.Payload)
	return buf, nil
}

// DecodeEdge parses an encoded edge. The result does not alias b.
func DecodeEdge(b []byte) (*Edge, error) {
	if len(b) < edgeHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the edge header", ErrCorruptEdge, len(b))
	}
	labelLen := int(binary.LittleEndian.Uint16(b[20:]))
	if edgeHeaderSize+labelLen > len(b) {
		return nil, fmt.Errorf("%w: label of %d bytes overruns a %d byte record", ErrCorruptEdge, labelLen, len(b))
	}
	e := &Edge{
		Source: NodeID{
			PageID: binary.LittleEndian.Uint64(b[0:]),
			Slot:   binary.LittleEndian.Uint16(b[8:]),
		},
		Destination: NodeID{
			PageID: binary.LittleEndian.Uint64(b[10:]),
			Slot:   binary.LittleEndian.Uint16(b[18:]),
		},
		Label: string(b[edgeHeaderSize : edgeHeaderSize+labelLen]),
	}
	if rest := b[edgeHeaderSize+labelLen:]; len(rest) > 0 {
		e.Payload = append([]byte(nil), rest...)
	}
	return e, nil
}
