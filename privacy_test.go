package bluetooth_test

import (
	"math/rand"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bluetooth "tinygo.org/x/blehost"
	"tinygo.org/x/blehost/hcisim"
)

var (
	localIRK = bluetooth.IRK{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	peerIRK  = bluetooth.IRK{0xec, 0x02, 0x34, 0xa3, 0x57, 0xc8, 0xad, 0x05, 0x34, 0x10, 0x10, 0xa6, 0x0a, 0x39, 0x7d, 0x9b}
	otherIRK = bluetooth.IRK{0xff, 0xee, 0xdd, 0xcc, 0xbb, 0xaa, 0x99, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11, 0x00}
)

// identityAddress returns a static random identity address.
func identityAddress(i byte) bluetooth.Address {
	return bluetooth.Address{
		MAC:  bluetooth.MAC{i, 0x11, 0x22, 0x33, 0x44, 0xC5},
		Type: bluetooth.AddressTypeRandomStaticIdentity,
	}
}

type resolution struct {
	peer     bluetooth.MAC
	resolved bool
	identity bluetooth.Address
}

type actionResult struct {
	action bluetooth.ResolvingListAction
	status bluetooth.Status
}

// privacyRecorder keeps every privacy event it receives.
type privacyRecorder struct {
	bluetooth.NoopPrivacyEventHandler

	rpas        []bluetooth.MAC
	nrpas       []bluetooth.MAC
	resolutions []resolution
	actions     []actionResult
}

func (r *privacyRecorder) OnResolvablePrivateAddressGenerated(addr bluetooth.MAC) {
	r.rpas = append(r.rpas, addr)
}

func (r *privacyRecorder) OnNonResolvablePrivateAddressGenerated(addr bluetooth.MAC) {
	r.nrpas = append(r.nrpas, addr)
}

func (r *privacyRecorder) OnAddressResolutionCompleted(peer bluetooth.MAC, resolved bool, identity bluetooth.Address) {
	r.resolutions = append(r.resolutions, resolution{peer, resolved, identity})
}

func (r *privacyRecorder) OnResolvingListActionComplete(action bluetooth.ResolvingListAction, status bluetooth.Status) {
	r.actions = append(r.actions, actionResult{action, status})
}

func (h *testHost) recordPrivacy() *privacyRecorder {
	r := &privacyRecorder{}
	h.privacy.SetEventHandler(r)
	return r
}

// peerRPA returns a resolvable private address generated by another device
// owning irk.
func peerRPA(t *testing.T, irk bluetooth.IRK, seed int64) bluetooth.MAC {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	a := bluetooth.NewAdapter(hcisim.New(),
		bluetooth.WithLogger(log),
		bluetooth.WithTicker(bluetooth.NewManualTicker(time.Time{})),
		bluetooth.WithRandom(rand.New(rand.NewSource(seed))),
	)
	require.NoError(t, a.Enable())
	defer a.Close()

	require.NoError(t, a.Privacy().SetLocalIRK(irk))
	a.Privacy().StartPrivateAddressGeneration()
	addr, ok := a.Privacy().ResolvableAddress()
	require.True(t, ok)
	return addr
}

func countCommands(sim *hcisim.Controller, name string) int {
	n := 0
	for _, cmd := range sim.CommandNames() {
		if cmd == name {
			n++
		}
	}
	return n
}

func TestPrivateAddressGeneration(t *testing.T) {
	h := newTestHost(t, hostOptions{})
	events := h.recordPrivacy()

	h.privacy.StartPrivateAddressGeneration()
	h.process()
	assert.Empty(t, events.rpas)
	assert.False(t, h.privacy.IsGenerating())
	_, ok := h.privacy.ResolvableAddress()
	assert.False(t, ok)

	assert.ErrorIs(t, h.privacy.SetLocalIRK(bluetooth.IRK{}), bluetooth.ErrInvalidParam)
	require.NoError(t, h.privacy.SetLocalIRK(localIRK))
	irk, ok := h.privacy.LocalIRK()
	assert.True(t, ok)
	assert.Equal(t, localIRK, irk)

	h.process()
	require.Len(t, events.rpas, 1)
	require.Len(t, events.nrpas, 1)
	assert.True(t, h.privacy.IsGenerating())
	rpa, nrpa := events.rpas[0], events.nrpas[0]
	assert.True(t, rpa.IsResolvablePrivate())
	assert.True(t, nrpa.IsNonResolvablePrivate())
	current, _ := h.privacy.ResolvableAddress()
	assert.Equal(t, rpa, current)
	current, _ = h.privacy.NonResolvableAddress()
	assert.Equal(t, nrpa, current)

	// The address resolves with the local IRK.
	self := identityAddress(0)
	require.NoError(t, h.privacy.AddDeviceToResolvingList(self, localIRK))
	_, complete, err := h.privacy.ResolveAddressOnHost(rpa)
	require.NoError(t, err)
	assert.False(t, complete)
	h.process()
	require.Len(t, events.resolutions, 1)
	assert.Equal(t, resolution{rpa, true, self}, events.resolutions[0])

	// Rotation.
	assert.Equal(t, 15*time.Minute, h.privacy.Timeout())
	h.advance(15 * time.Minute)
	require.Len(t, events.rpas, 2)
	require.Len(t, events.nrpas, 2)
	assert.NotEqual(t, rpa, events.rpas[1])

	assert.ErrorIs(t, h.privacy.SetTimeout(500*time.Millisecond), bluetooth.ErrInvalidParam)
	require.NoError(t, h.privacy.SetTimeout(time.Minute))
	h.advance(time.Minute)
	assert.Len(t, events.rpas, 3)

	h.privacy.StopPrivateAddressGeneration()
	h.advance(time.Minute)
	assert.Len(t, events.rpas, 3)
	assert.False(t, h.privacy.IsGenerating())
	_, ok = h.privacy.ResolvableAddress()
	assert.False(t, ok)
}

func TestSetLocalIRKRegenerates(t *testing.T) {
	h := newTestHost(t, hostOptions{})
	events := h.recordPrivacy()
	require.NoError(t, h.privacy.SetLocalIRK(localIRK))
	h.privacy.StartPrivateAddressGeneration()
	h.process()
	require.Len(t, events.rpas, 1)

	require.NoError(t, h.privacy.SetLocalIRK(otherIRK))
	h.process()
	require.Len(t, events.rpas, 2)

	// The rotation period starts over.
	h.advance(15*time.Minute - time.Second)
	assert.Len(t, events.rpas, 2)
}

func TestResolvingListSerialization(t *testing.T) {
	h := newTestHost(t, hostOptions{sim: []hcisim.Option{hcisim.WithManualCompletion()}})
	events := h.recordPrivacy()

	for i := byte(1); i <= 3; i++ {
		require.NoError(t, h.privacy.AddDeviceToResolvingList(identityAddress(i), peerIRK))
	}
	assert.Equal(t, 3, h.privacy.ResolvingListSize())
	assert.Equal(t, 1, countCommands(h.sim, "AddDeviceToResolvingList"), "one command in flight")

	for h.sim.Complete() {
		h.process()
	}
	assert.Equal(t, 3, countCommands(h.sim, "AddDeviceToResolvingList"))
	require.Len(t, events.actions, 3)
	for _, a := range events.actions {
		assert.Equal(t, actionResult{bluetooth.ResolvingListAdd, bluetooth.StatusSuccess}, a)
	}
	assert.Equal(t, []bluetooth.Address{identityAddress(1), identityAddress(2), identityAddress(3)}, h.sim.ResolvingList())

	assert.ErrorIs(t, h.privacy.AddDeviceToResolvingList(identityAddress(1), peerIRK), bluetooth.ErrAlreadyPresent)
	rpaIdentity := bluetooth.Address{MAC: bluetooth.MAC{1, 2, 3, 4, 5, 0x45}, Type: bluetooth.AddressTypeRandom}
	assert.ErrorIs(t, h.privacy.AddDeviceToResolvingList(rpaIdentity, peerIRK), bluetooth.ErrInvalidParam)
	assert.ErrorIs(t, h.privacy.RemoveDeviceFromResolvingList(identityAddress(9)), bluetooth.ErrNotFound)

	// The list holds the smaller of the configured and controller sizes.
	require.NoError(t, h.privacy.AddDeviceToResolvingList(identityAddress(4), peerIRK))
	require.NoError(t, h.privacy.AddDeviceToResolvingList(identityAddress(5), peerIRK))
	assert.ErrorIs(t, h.privacy.AddDeviceToResolvingList(identityAddress(6), peerIRK), bluetooth.ErrResourceExhausted)

	require.NoError(t, h.privacy.RemoveDeviceFromResolvingList(identityAddress(1)))
	h.privacy.ClearResolvingList()
	assert.Equal(t, 0, h.privacy.ResolvingListSize())
	for h.sim.Complete() {
		h.process()
	}
	require.Len(t, events.actions, 7)
	assert.Equal(t, bluetooth.ResolvingListRemove, events.actions[5].action)
	assert.Equal(t, bluetooth.ResolvingListClear, events.actions[6].action)
	assert.Empty(t, h.sim.ResolvingList())
}

func TestResolvingListActionFailure(t *testing.T) {
	h := newTestHost(t, hostOptions{})
	events := h.recordPrivacy()
	h.sim.FailNext(bluetooth.OpcodeAddDeviceToResolvingList, bluetooth.StatusMemoryCapacityExceeded)

	require.NoError(t, h.privacy.AddDeviceToResolvingList(identityAddress(1), peerIRK))
	require.NoError(t, h.privacy.AddDeviceToResolvingList(identityAddress(2), peerIRK))
	h.process()
	require.Len(t, events.actions, 2)
	assert.Equal(t, bluetooth.StatusMemoryCapacityExceeded, events.actions[0].status)
	assert.Equal(t, bluetooth.StatusSuccess, events.actions[1].status)
	assert.Equal(t, []bluetooth.Address{identityAddress(2)}, h.sim.ResolvingList())
	assert.Equal(t, 1, h.privacy.ResolvingListSize(), "failed add is dropped on the host")
}

func TestResolvingListRejectedRollsBack(t *testing.T) {
	h := newTestHost(t, hostOptions{})
	events := h.recordPrivacy()
	require.NoError(t, h.privacy.AddDeviceToResolvingList(identityAddress(1), peerIRK))
	h.process()

	h.sim.RejectNext(bluetooth.OpcodeAddDeviceToResolvingList, bluetooth.StatusCommandDisallowed)
	require.NoError(t, h.privacy.AddDeviceToResolvingList(identityAddress(2), otherIRK))
	assert.Equal(t, 1, h.privacy.ResolvingListSize())

	h.sim.RejectNext(bluetooth.OpcodeRemoveDeviceFromResolvingList, bluetooth.StatusCommandDisallowed)
	require.NoError(t, h.privacy.RemoveDeviceFromResolvingList(identityAddress(1)))
	assert.Equal(t, 1, h.privacy.ResolvingListSize())

	h.sim.RejectNext(bluetooth.OpcodeClearResolvingList, bluetooth.StatusCommandDisallowed)
	h.privacy.ClearResolvingList()
	assert.Equal(t, 1, h.privacy.ResolvingListSize())
	h.process()

	assert.Equal(t, []actionResult{
		{bluetooth.ResolvingListAdd, bluetooth.StatusSuccess},
		{bluetooth.ResolvingListAdd, bluetooth.StatusUnspecifiedError},
		{bluetooth.ResolvingListRemove, bluetooth.StatusUnspecifiedError},
		{bluetooth.ResolvingListClear, bluetooth.StatusUnspecifiedError},
	}, events.actions)
	assert.Equal(t, []bluetooth.Address{identityAddress(1)}, h.sim.ResolvingList())

	// The kept entry still resolves on the host.
	rpa := peerRPA(t, peerIRK, 1)
	_, complete, err := h.privacy.ResolveAddressOnHost(rpa)
	require.NoError(t, err)
	assert.False(t, complete)
	h.process()
	assert.Equal(t, []resolution{{rpa, true, identityAddress(1)}}, events.resolutions)
}

func TestControllerAddressResolution(t *testing.T) {
	h := newTestHost(t, hostOptions{})
	events := h.recordPrivacy()

	require.NoError(t, h.gap.EnablePrivacy(true))
	assert.True(t, h.gap.IsPrivacyEnabled())
	assert.Equal(t, 1, countCommands(h.sim, "SetAddressResolutionEnable"))
	h.process()
	assert.True(t, h.privacy.IsControllerAddressResolutionEnabled())
	assert.True(t, h.sim.AddressResolutionEnabled())
	assert.Equal(t, []actionResult{{bluetooth.ResolvingListSetResolution, bluetooth.StatusSuccess}}, events.actions)
	assert.Equal(t, 0, h.events.privacyEnabled, "waits for the local IRK")

	require.NoError(t, h.privacy.SetLocalIRK(localIRK))
	h.process()
	assert.Equal(t, 1, h.events.privacyEnabled)

	// Peer addresses are left to the controller.
	require.NoError(t, h.privacy.AddDeviceToResolvingList(identityAddress(1), peerIRK))
	require.NoError(t, h.gap.StartScan(0, false))
	h.process()
	rpa := peerRPA(t, peerIRK, 7)
	require.NoError(t, h.sim.InjectAdvertisingReport(bluetooth.Address{MAC: rpa, Type: bluetooth.AddressTypeRandom}, -50, nil))
	h.process()
	require.Len(t, h.events.reports, 1)
	assert.False(t, h.events.reports[0].PeerResolved)
	assert.Empty(t, events.resolutions)

	require.NoError(t, h.gap.StopScan())
	require.NoError(t, h.gap.EnablePrivacy(false))
	h.process()
	assert.False(t, h.gap.IsPrivacyEnabled())
	assert.False(t, h.privacy.IsControllerAddressResolutionEnabled())
	assert.False(t, h.sim.AddressResolutionEnabled())
	_, ok := h.privacy.ResolvableAddress()
	assert.False(t, ok)
	assert.Equal(t, 1, h.events.privacyEnabled)
}

func TestEnableControllerResolutionUnsupported(t *testing.T) {
	caps := hcisim.DefaultCapabilities()
	caps.AddressResolution = false
	h := newTestHost(t, hostOptions{sim: []hcisim.Option{hcisim.WithCapabilities(caps)}})
	assert.ErrorIs(t, h.privacy.EnableControllerAddressResolution(true), bluetooth.ErrOperationNotPermitted)
}

func TestHostAddressResolution(t *testing.T) {
	caps := hcisim.DefaultCapabilities()
	caps.AddressResolution = false
	h := newTestHost(t, hostOptions{sim: []hcisim.Option{hcisim.WithCapabilities(caps)}})
	events := h.recordPrivacy()

	require.NoError(t, h.gap.EnablePrivacy(true))
	h.process()
	assert.Equal(t, 0, h.events.privacyEnabled)
	require.NoError(t, h.privacy.SetLocalIRK(localIRK))
	h.process()
	assert.Equal(t, 1, h.events.privacyEnabled)
	assert.Zero(t, countCommands(h.sim, "SetAddressResolutionEnable"))

	identity := identityAddress(1)
	require.NoError(t, h.privacy.AddDeviceToResolvingList(identity, peerIRK))
	h.process()
	assert.Equal(t, []actionResult{{bluetooth.ResolvingListAdd, bluetooth.StatusSuccess}}, events.actions)
	assert.Zero(t, countCommands(h.sim, "AddDeviceToResolvingList"), "the list lives on the host")

	require.NoError(t, h.gap.StartScan(0, false))
	h.process()

	rpa := peerRPA(t, peerIRK, 7)
	peer := bluetooth.Address{MAC: rpa, Type: bluetooth.AddressTypeRandom}
	payload := []byte("\x05\x09peer")
	require.NoError(t, h.sim.InjectAdvertisingReport(peer, -50, payload))
	h.process()

	require.Len(t, h.events.reports, 1)
	report := h.events.reports[0]
	assert.True(t, report.PeerResolved)
	assert.Equal(t, identity, report.PeerIdentity)
	assert.Equal(t, peer, report.Peer)
	assert.Equal(t, "peer", report.LocalName())
	assert.Equal(t, []resolution{{rpa, true, identity}}, events.resolutions)

	// The outcome is cached.
	res, found := h.privacy.ResolveAddressInHostCache(rpa)
	assert.True(t, found)
	assert.Equal(t, identity, res.Identity)
	require.NoError(t, h.sim.InjectAdvertisingReport(peer, -50, payload))
	h.process()
	require.Len(t, h.events.reports, 2)
	assert.True(t, h.events.reports[1].PeerResolved)
	assert.Len(t, events.resolutions, 1)

	// An unknown peer is delivered unresolved.
	stranger := bluetooth.Address{MAC: peerRPA(t, otherIRK, 8), Type: bluetooth.AddressTypeRandom}
	require.NoError(t, h.sim.InjectAdvertisingReport(stranger, -70, nil))
	h.process()
	require.Len(t, h.events.reports, 3)
	assert.False(t, h.events.reports[2].PeerResolved)
	require.Len(t, events.resolutions, 2)
	assert.False(t, events.resolutions[1].resolved)
	res, found = h.privacy.ResolveAddressInHostCache(stranger.MAC)
	assert.True(t, found)
	assert.False(t, res.Resolved)

	// Connections are resolved too.
	require.NoError(t, h.gap.StopScan())
	require.NoError(t, h.gap.StartAdvertising(bluetooth.LegacyAdvertisingHandle, 0, 0))
	h.process()
	require.NoError(t, h.sim.ConnectToSet(bluetooth.LegacyAdvertisingHandle, peer, 3))
	h.process()
	require.Len(t, h.events.connections, 1)
	assert.True(t, h.events.connections[0].PeerResolved)
	assert.Equal(t, identity, h.events.connections[0].PeerIdentity)

	// Removing the peer forgets its resolutions.
	require.NoError(t, h.privacy.RemoveDeviceFromResolvingList(identity))
	_, found = h.privacy.ResolveAddressInHostCache(rpa)
	assert.False(t, found)
}

func TestHostResolutionRetriesUnresolved(t *testing.T) {
	caps := hcisim.DefaultCapabilities()
	caps.AddressResolution = false
	h := newTestHost(t, hostOptions{sim: []hcisim.Option{hcisim.WithCapabilities(caps)}})
	events := h.recordPrivacy()

	rpa := peerRPA(t, peerIRK, 9)
	_, complete, err := h.privacy.ResolveAddressOnHost(rpa)
	require.NoError(t, err)
	assert.False(t, complete)
	// A second request for the same address waits for the first.
	_, complete, err = h.privacy.ResolveAddressOnHost(rpa)
	require.NoError(t, err)
	assert.False(t, complete)
	h.process()
	require.Len(t, events.resolutions, 1)
	assert.False(t, events.resolutions[0].resolved)

	res, complete, err := h.privacy.ResolveAddressOnHost(rpa)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.False(t, res.Resolved)

	// A new key invalidates negative outcomes.
	require.NoError(t, h.privacy.AddDeviceToResolvingList(identityAddress(1), peerIRK))
	_, complete, err = h.privacy.ResolveAddressOnHost(rpa)
	require.NoError(t, err)
	assert.False(t, complete)
	h.process()
	require.Len(t, events.resolutions, 2)
	assert.True(t, events.resolutions[1].resolved)

	// Addresses that are not resolvable complete right away.
	res, complete, err = h.privacy.ResolveAddressOnHost(bluetooth.MAC{1, 2, 3, 4, 5, 0xC6})
	require.NoError(t, err)
	assert.True(t, complete)
	assert.False(t, res.Resolved)
}

func TestPendingReportListFull(t *testing.T) {
	caps := hcisim.DefaultCapabilities()
	caps.AddressResolution = false
	cfg := bluetooth.DefaultConfig()
	cfg.PendingEventListSize = 1
	h := newTestHost(t, hostOptions{config: cfg, sim: []hcisim.Option{hcisim.WithCapabilities(caps)}})
	require.NoError(t, h.gap.EnablePrivacy(true))
	require.NoError(t, h.privacy.SetLocalIRK(localIRK))
	require.NoError(t, h.gap.StartScan(0, false))
	h.process()

	// Two resolutions ahead keep the reports waiting.
	for seed := int64(1); seed <= 2; seed++ {
		_, _, err := h.privacy.ResolveAddressOnHost(peerRPA(t, otherIRK, seed))
		require.NoError(t, err)
	}
	for seed := int64(3); seed <= 4; seed++ {
		peer := bluetooth.Address{MAC: peerRPA(t, otherIRK, seed), Type: bluetooth.AddressTypeRandom}
		require.NoError(t, h.sim.InjectAdvertisingReport(peer, -60, nil))
	}
	h.process()

	assert.Len(t, h.events.reports, 1)
	assert.True(t, h.loggedWarning("pending report list full, dropping advertising report"))
}

func TestHostResolutionQueueFull(t *testing.T) {
	cfg := bluetooth.DefaultConfig()
	cfg.PrivacyResolvedCacheSize = 2
	h := newTestHost(t, hostOptions{config: cfg})

	for seed := int64(1); seed <= 2; seed++ {
		_, _, err := h.privacy.ResolveAddressOnHost(peerRPA(t, peerIRK, seed))
		require.NoError(t, err)
	}
	_, _, err := h.privacy.ResolveAddressOnHost(peerRPA(t, peerIRK, 3))
	assert.ErrorIs(t, err, bluetooth.ErrResourceExhausted)
}

func TestPrivacyAdvertisingAddresses(t *testing.T) {
	h := newTestHost(t, hostOptions{})
	events := h.recordPrivacy()
	require.NoError(t, h.gap.EnablePrivacy(true))
	require.NoError(t, h.privacy.SetLocalIRK(localIRK))
	h.process()
	require.Len(t, events.rpas, 1)
	rpa, nrpa := events.rpas[0], events.nrpas[0]

	legacy := bluetooth.DefaultAdvertisingParameters()
	legacy.OwnAddressType = bluetooth.OwnAddressRandom
	require.NoError(t, h.gap.SetAdvertisingParameters(bluetooth.LegacyAdvertisingHandle, legacy))
	h.startSet(t, bluetooth.LegacyAdvertisingHandle, 0, 0)
	set, _ := h.sim.Set(bluetooth.LegacyAdvertisingHandle)
	assert.Equal(t, rpa, set.Address, "connectable sets use the resolvable address")

	params := extendedParams()
	params.OwnAddressType = bluetooth.OwnAddressRandom
	beacon, err := h.gap.CreateAdvertisingSet(params)
	require.NoError(t, err)
	h.startSet(t, beacon, 0, 0)
	set, _ = h.sim.Set(beacon)
	assert.Equal(t, nrpa, set.Address, "other sets use the non-resolvable address")

	assert.ErrorIs(t, h.gap.EnablePrivacy(false), bluetooth.ErrInvalidState)

	// Rotation reaches active sets once they stop.
	h.advance(15 * time.Minute)
	require.Len(t, events.rpas, 2)
	set, _ = h.sim.Set(bluetooth.LegacyAdvertisingHandle)
	assert.Equal(t, rpa, set.Address)

	require.NoError(t, h.gap.StopAdvertising(bluetooth.LegacyAdvertisingHandle))
	h.process()
	set, _ = h.sim.Set(bluetooth.LegacyAdvertisingHandle)
	assert.Equal(t, events.rpas[1], set.Address)

	require.NoError(t, h.gap.StopAdvertising(beacon))
	h.process()
	set, _ = h.sim.Set(beacon)
	assert.Equal(t, events.nrpas[1], set.Address)

	// Becoming connectable switches to the resolvable address.
	params.Type = bluetooth.AdvertisingConnectableNonScannableUndirected
	require.NoError(t, h.gap.SetAdvertisingParameters(beacon, params))
	set, _ = h.sim.Set(beacon)
	assert.Equal(t, events.rpas[1], set.Address)

	require.NoError(t, h.gap.EnablePrivacy(false))
}

func TestPrivacyScanAddress(t *testing.T) {
	h := newTestHost(t, hostOptions{})
	events := h.recordPrivacy()
	params := bluetooth.DefaultScanParameters()
	params.OwnAddressType = bluetooth.OwnAddressRandom
	require.NoError(t, h.gap.SetScanParameters(params))

	require.NoError(t, h.gap.EnablePrivacy(true))
	require.NoError(t, h.privacy.SetLocalIRK(localIRK))
	h.process()
	require.Len(t, events.rpas, 1)
	assert.Equal(t, events.rpas[0], h.sim.RandomAddress())

	require.NoError(t, h.gap.StartScan(0, false))
	h.process()

	// The address cannot change while scanning.
	h.advance(15 * time.Minute)
	require.Len(t, events.rpas, 2)
	assert.Equal(t, events.rpas[0], h.sim.RandomAddress())

	require.NoError(t, h.gap.StopScan())
	h.process()
	assert.Equal(t, events.rpas[1], h.sim.RandomAddress())
}

func TestPrivacyNeedsAddresses(t *testing.T) {
	h := newTestHost(t, hostOptions{})
	require.NoError(t, h.gap.EnablePrivacy(true))
	h.process()

	params := bluetooth.DefaultAdvertisingParameters()
	params.OwnAddressType = bluetooth.OwnAddressRandom
	require.NoError(t, h.gap.SetAdvertisingParameters(bluetooth.LegacyAdvertisingHandle, params))
	assert.ErrorIs(t, h.gap.StartAdvertising(bluetooth.LegacyAdvertisingHandle, 0, 0), bluetooth.ErrInvalidState)
	assert.False(t, h.gap.IsAdvertisingActive(bluetooth.LegacyAdvertisingHandle))

	// Public addresses are unaffected.
	require.NoError(t, h.gap.SetAdvertisingParameters(bluetooth.LegacyAdvertisingHandle, bluetooth.DefaultAdvertisingParameters()))
	require.NoError(t, h.gap.StartAdvertising(bluetooth.LegacyAdvertisingHandle, 0, 0))
}
