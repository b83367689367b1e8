package bluetooth

import (
	"crypto/aes"
	"fmt"
	"io"
)

// ah is the random address hash function of Core Vol 3 Part H 2.2.2. r and
// the result are 24-bit values.
func ah(irk IRK, r uint32) uint32 {
	block, err := aes.NewCipher(irk[:])
	if err != nil {
		// A 16 byte key is always valid.
		panic(err)
	}
	var in, out [16]byte
	in[13] = byte(r >> 16)
	in[14] = byte(r >> 8)
	in[15] = byte(r)
	block.Encrypt(out[:], in[:])
	return uint32(out[13])<<16 | uint32(out[14])<<8 | uint32(out[15])
}

func le24(b [3]byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// resolvePrivateAddress reports whether addr was generated from irk.
func resolvePrivateAddress(irk IRK, addr MAC) bool {
	if !addr.IsResolvablePrivate() {
		return false
	}
	return ah(irk, le24(addr.prand())) == le24(addr.hash())
}

// makeResolvableAddress builds the resolvable private address of prand. The
// two most significant bits of prand are overwritten.
func makeResolvableAddress(irk IRK, prand uint32) MAC {
	prand = prand&0x3FFFFF | 0x400000
	hash := ah(irk, prand)
	return MAC{
		byte(hash), byte(hash >> 8), byte(hash >> 16),
		byte(prand), byte(prand >> 8), byte(prand >> 16),
	}
}

// generateResolvableAddress returns a new resolvable private address for irk.
func generateResolvableAddress(irk IRK, rand io.Reader) (MAC, error) {
	for {
		var b [3]byte
		if _, err := io.ReadFull(rand, b[:]); err != nil {
			return MAC{}, fmt.Errorf("reading random: %w", err)
		}
		r := le24(b) & 0x3FFFFF
		// The random part of prand cannot be all zeros or all ones.
		if r == 0 || r == 0x3FFFFF {
			continue
		}
		return makeResolvableAddress(irk, r), nil
	}
}

// generateNonResolvableAddress returns a new non-resolvable private address.
func generateNonResolvableAddress(rand io.Reader) (MAC, error) {
	for {
		var mac MAC
		if _, err := io.ReadFull(rand, mac[:]); err != nil {
			return MAC{}, fmt.Errorf("reading random: %w", err)
		}
		mac[5] &= 0x3F
		if mac == (MAC{}) || mac == (MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x3F}) {
			continue
		}
		return mac, nil
	}
}
