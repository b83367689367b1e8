package bluetooth

import "errors"

// MAC represents a MAC address, in little endian format.
type MAC [6]byte

var errInvalidMAC = errors.New("bluetooth: failed to parse MAC address")

// ParseMAC parses the given MAC address, which must be in 11:22:33:AA:BB:CC
// format. If it cannot be parsed, an error is returned.
func ParseMAC(s string) (mac MAC, err error) {
	macIndex := 11
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ':' {
			continue
		}
		var nibble byte
		switch {
		case c >= '0' && c <= '9':
			nibble = c - '0' + 0x0
		case c >= 'A' && c <= 'F':
			nibble = c - 'A' + 0xA
		case c >= 'a' && c <= 'f':
			nibble = c - 'a' + 0xA
		default:
			err = errInvalidMAC
			return
		}
		if macIndex < 0 {
			err = errInvalidMAC
			return
		}
		if macIndex%2 == 0 {
			mac[macIndex/2] |= nibble
		} else {
			mac[macIndex/2] |= nibble << 4
		}
		macIndex--
	}
	if macIndex != -1 {
		err = errInvalidMAC
	}
	return
}

// String returns a human-readable version of this MAC address, such as
// 11:22:33:AA:BB:CC.
func (mac MAC) String() string {
	const hexDigits = "0123456789ABCDEF"
	var buf [17]byte
	pos := 0
	for i := 5; i >= 0; i-- {
		if i != 5 {
			buf[pos] = ':'
			pos++
		}
		buf[pos] = hexDigits[mac[i]>>4]
		buf[pos+1] = hexDigits[mac[i]&0x0f]
		pos += 2
	}
	return string(buf[:])
}

// The two most significant bits of a random address select its sub-type.
const (
	randomSubtypeMask          = 0xC0
	randomSubtypeNonResolvable = 0x00
	randomSubtypeResolvable    = 0x40
	randomSubtypeStatic        = 0xC0
)

// IsResolvablePrivate reports whether the address, read as a random address,
// is a resolvable private address.
func (mac MAC) IsResolvablePrivate() bool {
	return mac[5]&randomSubtypeMask == randomSubtypeResolvable
}

// IsNonResolvablePrivate reports whether the address, read as a random
// address, is a non-resolvable private address.
func (mac MAC) IsNonResolvablePrivate() bool {
	return mac[5]&randomSubtypeMask == randomSubtypeNonResolvable
}

// IsStaticRandom reports whether the address, read as a random address, is a
// static random address.
func (mac MAC) IsStaticRandom() bool {
	return mac[5]&randomSubtypeMask == randomSubtypeStatic
}

// prand returns the 24-bit random part of a resolvable private address.
func (mac MAC) prand() [3]byte {
	return [3]byte{mac[3], mac[4], mac[5]}
}

// hash returns the 24-bit hash part of a resolvable private address.
func (mac MAC) hash() [3]byte {
	return [3]byte{mac[0], mac[1], mac[2]}
}

// AddressType is the type of a Bluetooth device address as used in HCI
// commands and events.
type AddressType uint8

const (
	AddressTypePublic               AddressType = 0x00
	AddressTypeRandom               AddressType = 0x01
	AddressTypePublicIdentity       AddressType = 0x02
	AddressTypeRandomStaticIdentity AddressType = 0x03
)

func (t AddressType) String() string {
	switch t {
	case AddressTypePublic:
		return "public"
	case AddressTypeRandom:
		return "random"
	case AddressTypePublicIdentity:
		return "public-identity"
	case AddressTypeRandomStaticIdentity:
		return "random-static-identity"
	default:
		return "unknown"
	}
}

// IsRandom reports whether the address type designates a random address.
func (t AddressType) IsRandom() bool {
	return t == AddressTypeRandom || t == AddressTypeRandomStaticIdentity
}

// Address contains a Bluetooth MAC address along with its type.
type Address struct {
	MAC
	Type AddressType
}

// String returns the MAC address followed by its type, for example
// "11:22:33:AA:BB:CC (random)".
func (a Address) String() string {
	return a.MAC.String() + " (" + a.Type.String() + ")"
}

// IsResolvable reports whether the address is a random resolvable private
// address.
func (a Address) IsResolvable() bool {
	return a.Type == AddressTypeRandom && a.MAC.IsResolvablePrivate()
}
