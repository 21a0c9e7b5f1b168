// Package encoder turns live device tracks into an ordered sequence of binary
// chunks that concatenate to a recording payload.
package encoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/starford/screenflowr/internal/device"
)

// Container is the output format.
type Container string

const (
	ContainerWebM Container = "webm"
	ContainerMP4  Container = "mp4"
)

// ParseContainer validates a container name.
func ParseContainer(s string) (Container, error) {
	switch c := Container(s); c {
	case ContainerWebM, ContainerMP4:
		return c, nil
	}
	return "", fmt.Errorf("encoder: unknown container %q", s)
}

// MIMEType returns the payload media type.
func (c Container) MIMEType() string {
	if c == ContainerMP4 {
		return "video/mp4"
	}
	return "video/webm;codecs=vp9"
}

// Extension returns the file extension without the dot.
func (c Container) Extension() string {
	if c == ContainerMP4 {
		return "mp4"
	}
	return "webm"
}

// signature opens every payload so readers can identify the container.
func (c Container) signature() []byte {
	if c == ContainerMP4 {
		return []byte{0, 0, 0, 16, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0}
	}
	return []byte{0x1a, 0x45, 0xdf, 0xa3, 0x9f, 0x42, 0x86, 0x81, 0x01, 0x42, 0x82, 0x84, 'w', 'e', 'b', 'm'}
}

// Packet is one track sample inside a payload.
type Packet struct {
	Track     uint8
	Kind      device.TrackKind
	Timestamp uint32 // milliseconds since Start, pauses excluded
	Data      []byte
}

const packetHeaderSize = 1 + 1 + 4 + 4

func kindByte(k device.TrackKind) byte {
	if k == device.KindAudio {
		return 'A'
	}
	return 'V'
}

func appendPacket(buf *bytes.Buffer, p Packet) {
	var hdr [packetHeaderSize]byte
	hdr[0] = p.Track
	hdr[1] = kindByte(p.Kind)
	binary.BigEndian.PutUint32(hdr[2:6], p.Timestamp)
	binary.BigEndian.PutUint32(hdr[6:10], uint32(len(p.Data)))
	buf.Write(hdr[:])
	buf.Write(p.Data)
}

// ErrMalformed is returned by Parse for payloads it cannot read.
var ErrMalformed = errors.New("encoder: malformed payload")

// Parse splits a payload produced by Chunked back into packets.
func Parse(payload []byte) (Container, []Packet, error) {
	var c Container
	for _, candidate := range []Container{ContainerWebM, ContainerMP4} {
		if bytes.HasPrefix(payload, candidate.signature()) {
			c = candidate
			break
		}
	}
	if c == "" {
		return "", nil, fmt.Errorf("%w: unknown signature", ErrMalformed)
	}

	r := bytes.NewReader(payload[len(c.signature()):])
	var out []Packet
	for r.Len() > 0 {
		var hdr [packetHeaderSize]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return c, out, fmt.Errorf("%w: truncated header", ErrMalformed)
		}
		n := binary.BigEndian.Uint32(hdr[6:10])
		if int64(n) > int64(r.Len()) {
			return c, out, fmt.Errorf("%w: truncated sample", ErrMalformed)
		}
		p := Packet{
			Track:     hdr[0],
			Kind:      device.KindVideo,
			Timestamp: binary.BigEndian.Uint32(hdr[2:6]),
			Data:      make([]byte, n),
		}
		if hdr[1] == 'A' {
			p.Kind = device.KindAudio
		}
		if _, err := io.ReadFull(r, p.Data); err != nil {
			return c, out, fmt.Errorf("%w: truncated sample", ErrMalformed)
		}
		out = append(out, p)
	}
	return c, out, nil
}
