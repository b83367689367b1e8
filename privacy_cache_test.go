package bluetooth

import (
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peerMAC(i byte) MAC {
	return MAC{i, 0, 0, 0, 0, 0x40}
}

func identity(i byte) Address {
	return Address{MAC: MAC{i, 0, 0, 0, 0, 0xC0}, Type: AddressTypeRandomStaticIdentity}
}

func TestResolvedCacheLRU(t *testing.T) {
	c := newResolvedCache(2)
	c.add(peerMAC(1), AddressResolution{Identity: identity(1), Resolved: true})
	c.add(peerMAC(2), AddressResolution{Identity: identity(2), Resolved: true})
	assert.Equal(t, 2, c.len())

	// Touch 1 so that 2 is the least recently used.
	_, found := c.lookup(peerMAC(1))
	assert.True(t, found)

	c.add(peerMAC(3), AddressResolution{})
	assert.Equal(t, 2, c.len())
	_, found = c.lookup(peerMAC(2))
	assert.False(t, found)

	res, found := c.lookup(peerMAC(1))
	assert.True(t, found)
	assert.Equal(t, AddressResolution{Identity: identity(1), Resolved: true}, res)

	res, found = c.lookup(peerMAC(3))
	assert.True(t, found)
	assert.False(t, res.Resolved)
}

func TestResolvedCacheUpdate(t *testing.T) {
	c := newResolvedCache(3)
	c.add(peerMAC(1), AddressResolution{})
	c.add(peerMAC(1), AddressResolution{Identity: identity(1), Resolved: true})
	assert.Equal(t, 1, c.len())
	res, _ := c.lookup(peerMAC(1))
	assert.True(t, res.Resolved)
}

func TestResolvedCacheRemove(t *testing.T) {
	c := newResolvedCache(4)
	c.add(peerMAC(1), AddressResolution{Identity: identity(1), Resolved: true})
	c.add(peerMAC(2), AddressResolution{})
	c.add(peerMAC(3), AddressResolution{Identity: identity(1), Resolved: true})
	c.add(peerMAC(4), AddressResolution{Identity: identity(2), Resolved: true})

	c.removeIdentity(identity(1))
	assert.Equal(t, 2, c.len())
	_, found := c.lookup(peerMAC(1))
	assert.False(t, found)
	_, found = c.lookup(peerMAC(3))
	assert.False(t, found)

	c.removeUnresolved()
	assert.Equal(t, 1, c.len())
	_, found = c.lookup(peerMAC(4))
	assert.True(t, found)

	// Freed nodes are reused.
	for i := byte(10); i < 13; i++ {
		c.add(peerMAC(i), AddressResolution{})
	}
	assert.Equal(t, 4, c.len())
	_, found = c.lookup(peerMAC(4))
	assert.True(t, found)

	c.reset()
	assert.Equal(t, 0, c.len())
	_, found = c.lookup(peerMAC(4))
	assert.False(t, found)
}

func TestResolvedCacheSize(t *testing.T) {
	assert.Panics(t, func() { newResolvedCache(0) })
}

func TestHostResolutionQueueStorage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrivacyResolvedCacheSize = 4
	log, _ := logtest.NewNullLogger()
	q := newEventQueue(8)
	p := newPrivateAddressController(nil, ControllerCapabilities{}, q, NewManualTicker(time.Time{}), nil, cfg, log)
	storage := &p.hostQueue[:1][0]

	for round := 0; round < 3; round++ {
		for i := 0; i < 4; i++ {
			_, complete, err := p.ResolveAddressOnHost(MAC{byte(round*4 + i), 1, 0, 0, 0, 0x40})
			require.NoError(t, err)
			assert.False(t, complete)
		}
		q.process(func(ControllerEvent) {})
		assert.Empty(t, p.hostQueue)
		assert.Equal(t, 4, cap(p.hostQueue))
		assert.Same(t, storage, &p.hostQueue[:1][0])
	}
}
