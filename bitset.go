package bluetooth

import "math/bits"

// handleSet is a set of advertising handles.
type handleSet [4]uint64

func (s *handleSet) set(h AdvertisingHandle) {
	s[h/64] |= 1 << (h % 64)
}

func (s *handleSet) clear(h AdvertisingHandle) {
	s[h/64] &^= 1 << (h % 64)
}

func (s *handleSet) assign(h AdvertisingHandle, v bool) {
	if v {
		s.set(h)
	} else {
		s.clear(h)
	}
}

func (s *handleSet) has(h AdvertisingHandle) bool {
	return s[h/64]&(1<<(h%64)) != 0
}

func (s *handleSet) count() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

func (s *handleSet) empty() bool {
	return *s == handleSet{}
}
