// Package rfbsession is the reference session.ClientSession implementation:
// a minimal RFB 3.8 wire codec wired to a rfbserver.ServerCore through the
// session.CoreCallbacks contract. Encodings beyond Raw are recorded, not
// decoded — pixel data compression stays out of scope, but a client's
// negotiated SetPixelFormat is honoured on every outgoing rectangle.
package rfbsession

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/cyberinferno/vncmux/framebuffer"
	"github.com/cyberinferno/vncmux/utils"
)

const (
	rfbVersion33 = "RFB 003.003\n"
	rfbVersion38 = "RFB 003.008\n"

	securityTypeNone = 1

	securityResultOK     = 0
	securityResultFailed = 1

	// Client-to-server message types.
	msgSetPixelFormat         = 0
	msgSetEncodings           = 2
	msgFramebufferUpdateReq   = 3
	msgKeyEvent               = 4
	msgPointerEvent           = 5
	msgClientCutText          = 6

	// Server-to-client message types.
	msgFramebufferUpdate = 0
	msgBell              = 2
	msgServerCutText     = 3

	rawEncoding = 0

	setPixelFormatBodyLen = 19 // everything after the message-type byte
)

// pixelFormatWireLen is the RFB wire size of a PixelFormat structure,
// including its 3 padding bytes.
const pixelFormatWireLen = 16

// writePixelFormat appends pf to buf in RFB wire layout.
func writePixelFormat(buf []byte, pf framebuffer.PixelFormat) []byte {
	buf = append(buf, pf.BitsPerPixel, pf.Depth, pf.BigEndianFlag, pf.TrueColorFlag)
	buf = binary.BigEndian.AppendUint16(buf, pf.RedMax)
	buf = binary.BigEndian.AppendUint16(buf, pf.GreenMax)
	buf = binary.BigEndian.AppendUint16(buf, pf.BlueMax)
	buf = append(buf, pf.RedShift, pf.GreenShift, pf.BlueShift)
	buf = append(buf, 0, 0, 0) // padding
	return buf
}

// readPixelFormat parses a wire PixelFormat out of buf, which must be at
// least pixelFormatWireLen bytes.
func readPixelFormat(buf []byte) framebuffer.PixelFormat {
	return framebuffer.PixelFormat{
		BitsPerPixel:  buf[0],
		Depth:         buf[1],
		BigEndianFlag: buf[2],
		TrueColorFlag: buf[3],
		RedMax:        binary.BigEndian.Uint16(buf[4:6]),
		GreenMax:      binary.BigEndian.Uint16(buf[6:8]),
		BlueMax:       binary.BigEndian.Uint16(buf[8:10]),
		RedShift:      buf[10],
		GreenShift:    buf[11],
		BlueShift:     buf[12],
		// buf[13:16] is padding.
	}
}

// writePixelValue packs value into buf (sized to the target bytes-per-pixel)
// honouring the format's endianness.
func writePixelValue(buf []byte, value uint32, bigEndian uint8) {
	switch len(buf) {
	case 1:
		buf[0] = uint8(value)
	case 2:
		if bigEndian != 0 {
			binary.BigEndian.PutUint16(buf, uint16(value))
		} else {
			binary.LittleEndian.PutUint16(buf, uint16(value))
		}
	case 3:
		if bigEndian != 0 {
			buf[0], buf[1], buf[2] = byte(value>>16), byte(value>>8), byte(value)
		} else {
			buf[0], buf[1], buf[2] = byte(value), byte(value>>8), byte(value>>16)
		}
	case 4:
		if bigEndian != 0 {
			binary.BigEndian.PutUint32(buf, value)
		} else {
			binary.LittleEndian.PutUint32(buf, value)
		}
	}
}

// readPixelValue is the inverse of writePixelValue.
func readPixelValue(buf []byte, bigEndian uint8) uint32 {
	switch len(buf) {
	case 1:
		return uint32(buf[0])
	case 2:
		if bigEndian != 0 {
			return uint32(binary.BigEndian.Uint16(buf))
		}
		return uint32(binary.LittleEndian.Uint16(buf))
	case 3:
		if bigEndian != 0 {
			return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
		}
		return uint32(buf[2])<<16 | uint32(buf[1])<<8 | uint32(buf[0])
	case 4:
		if bigEndian != 0 {
			return binary.BigEndian.Uint32(buf)
		}
		return binary.LittleEndian.Uint32(buf)
	}
	return 0
}

// convertPixel re-packs one pixel from src's native format into dst's
// negotiated format, scaling each colour channel by max-value ratio.
func convertPixel(native []byte, from framebuffer.PixelFormat, to framebuffer.PixelFormat) []byte {
	v := readPixelValue(native, from.BigEndianFlag)
	r := (v >> from.RedShift) & uint32(from.RedMax)
	g := (v >> from.GreenShift) & uint32(from.GreenMax)
	b := (v >> from.BlueShift) & uint32(from.BlueMax)

	if from.RedMax > 0 {
		r = r * uint32(to.RedMax) / uint32(from.RedMax)
	}
	if from.GreenMax > 0 {
		g = g * uint32(to.GreenMax) / uint32(from.GreenMax)
	}
	if from.BlueMax > 0 {
		b = b * uint32(to.BlueMax) / uint32(from.BlueMax)
	}

	out := r<<to.RedShift | g<<to.GreenShift | b<<to.BlueShift
	dst := make([]byte, to.BytesPerPixel())
	writePixelValue(dst, out, to.BigEndianFlag)
	return dst
}

// convertPixels re-packs a full row-major native-format buffer into the
// negotiated format. Returns native unchanged if the two formats already
// match, to skip the per-pixel loop on the common case.
func convertPixels(native []byte, from, to framebuffer.PixelFormat) []byte {
	if from == to {
		return native
	}
	fromBpp := from.BytesPerPixel()
	toBpp := to.BytesPerPixel()
	if fromBpp <= 0 {
		return nil
	}
	count := len(native) / fromBpp
	out := make([]byte, 0, count*toBpp)
	for i := 0; i < count; i++ {
		px := convertPixel(native[i*fromBpp:(i+1)*fromBpp], from, to)
		out = append(out, px...)
	}
	return out
}

func sendVersion(conn net.Conn) error {
	_, err := conn.Write([]byte(rfbVersion38))
	return err
}

func readVersion(conn net.Conn) (string, error) {
	buf := make([]byte, len(rfbVersion38))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func sendSecurityTypes(conn net.Conn, types ...uint8) error {
	msg := make([]byte, 1+len(types))
	msg[0] = uint8(len(types))
	copy(msg[1:], types)
	_, err := conn.Write(msg)
	return err
}

func readByte(conn net.Conn) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func sendSecurityResult(conn net.Conn, result uint32, reason string) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, result)
	if result != securityResultOK {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(reason)))
		buf = append(buf, reason...)
	}
	_, err := conn.Write(buf)
	return err
}

func sendServerInit(conn net.Conn, width, height int, pf framebuffer.PixelFormat, name string) error {
	dims := binary.BigEndian.AppendUint16(nil, uint16(width))
	dims = binary.BigEndian.AppendUint16(dims, uint16(height))
	nameLen := binary.BigEndian.AppendUint32(nil, uint32(len(name)))
	buf := utils.JoinBytes(dims, writePixelFormat(nil, pf), nameLen, []byte(name))
	_, err := conn.Write(buf)
	return err
}

func readClientInit(conn net.Conn) (shared bool, err error) {
	b, err := readByte(conn)
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// errUnknownMessageType is returned by readMessage for a client-to-server
// message type outside the six this codec understands.
type errUnknownMessageType byte

func (e errUnknownMessageType) Error() string {
	return fmt.Sprintf("rfbsession: unknown client message type %d", byte(e))
}
