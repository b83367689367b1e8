package bluetooth

// This file implements 16-bit and 128-bit UUIDs as defined in the Bluetooth
// specification.

import (
	"encoding/binary"
	"errors"
)

// UUID is a single UUID as used in the Bluetooth stack. It is represented as a
// [4]uint32 instead of a [16]byte for efficiency. uuid[3] holds the most
// significant bits.
type UUID [4]uint32

var errInvalidUUID = errors.New("bluetooth: failed to parse UUID")

// New16BitUUID returns a new 128-bit UUID based on a 16-bit UUID.
//
// Note: only use registered UUIDs. See
// https://www.bluetooth.com/specifications/gatt/services/ for a list.
func New16BitUUID(shortUUID uint16) UUID {
	var uuid UUID
	uuid[0] = 0x5F9B34FB
	uuid[1] = 0x80000080
	uuid[2] = 0x00001000
	uuid[3] = uint32(shortUUID)
	return uuid
}

// NewUUID returns a new UUID from the 16 bytes in big endian (string) order.
func NewUUID(b [16]byte) UUID {
	return UUID{
		binary.BigEndian.Uint32(b[12:16]),
		binary.BigEndian.Uint32(b[8:12]),
		binary.BigEndian.Uint32(b[4:8]),
		binary.BigEndian.Uint32(b[0:4]),
	}
}

// uuidFromLittleEndian decodes a 128-bit UUID as it appears on air.
func uuidFromLittleEndian(b []byte) UUID {
	return UUID{
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint32(b[4:8]),
		binary.LittleEndian.Uint32(b[8:12]),
		binary.LittleEndian.Uint32(b[12:16]),
	}
}

// Is16Bit returns whether this UUID is a 16-bit BLE UUID.
func (uuid UUID) Is16Bit() bool {
	return uuid.Is32Bit() && uuid[3] == uint32(uint16(uuid[3]))
}

// Is32Bit returns whether this UUID is a 32-bit BLE UUID.
func (uuid UUID) Is32Bit() bool {
	return uuid[0] == 0x5F9B34FB && uuid[1] == 0x80000080 && uuid[2] == 0x00001000
}

// Get16Bit returns the 16-bit version of this UUID. This is only valid if it
// actually is a 16-bit UUID, see Is16Bit.
func (uuid UUID) Get16Bit() uint16 {
	return uint16(uuid[3])
}

// Bytes returns the UUID as a big endian byte array.
func (uuid UUID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint32(b[0:4], uuid[3])
	binary.BigEndian.PutUint32(b[4:8], uuid[2])
	binary.BigEndian.PutUint32(b[8:12], uuid[1])
	binary.BigEndian.PutUint32(b[12:16], uuid[0])
	return b
}

// appendLittleEndian appends the on-air encoding of the UUID: two bytes for
// 16-bit UUIDs, sixteen otherwise.
func (uuid UUID) appendLittleEndian(b []byte) []byte {
	if uuid.Is16Bit() {
		return binary.LittleEndian.AppendUint16(b, uuid.Get16Bit())
	}
	b = binary.LittleEndian.AppendUint32(b, uuid[0])
	b = binary.LittleEndian.AppendUint32(b, uuid[1])
	b = binary.LittleEndian.AppendUint32(b, uuid[2])
	return binary.LittleEndian.AppendUint32(b, uuid[3])
}

// ParseUUID parses the given UUID, which must be in
// 00001234-0000-1000-8000-00805f9b34fb format. Upper and lower case hex
// digits are both accepted.
func ParseUUID(s string) (uuid UUID, err error) {
	if len(s) != 36 {
		return uuid, errInvalidUUID
	}
	nibbles := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return UUID{}, errInvalidUUID
			}
			continue
		}
		var nibble byte
		switch {
		case c >= '0' && c <= '9':
			nibble = c - '0'
		case c >= 'a' && c <= 'f':
			nibble = c - 'a' + 0xA
		case c >= 'A' && c <= 'F':
			nibble = c - 'A' + 0xA
		default:
			return UUID{}, errInvalidUUID
		}
		word := 3 - nibbles/8
		uuid[word] = uuid[word]<<4 | uint32(nibble)
		nibbles++
	}
	return uuid, nil
}

// String returns a human-readable version of this UUID, such as
// 00001234-0000-1000-8000-00805f9b34fb.
func (uuid UUID) String() string {
	const hexDigits = "0123456789abcdef"
	var buf [36]byte
	pos := 0
	for i := 0; i < 32; i++ {
		if i == 8 || i == 12 || i == 16 || i == 20 {
			buf[pos] = '-'
			pos++
		}
		word := uuid[3-i/8]
		shift := uint(28 - (i%8)*4)
		buf[pos] = hexDigits[(word>>shift)&0xF]
		pos++
	}
	return string(buf[:])
}
