package hcisim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bluetooth "tinygo.org/x/blehost"
	"tinygo.org/x/blehost/hcisim"
)

type sink struct {
	events []bluetooth.ControllerEvent
}

func (s *sink) PostControllerEvent(ev bluetooth.ControllerEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func newController(t *testing.T, opts ...hcisim.Option) (*hcisim.Controller, *sink) {
	t.Helper()
	c := hcisim.New(opts...)
	s := &sink{}
	require.NoError(t, c.Init(s))
	return c, s
}

func TestInit(t *testing.T) {
	c := hcisim.New()
	assert.Error(t, c.InjectScanRequest(0, bluetooth.Address{}), "events need a sink")

	require.NoError(t, c.Init(&sink{}))
	assert.Error(t, c.Init(&sink{}))
	require.NoError(t, c.Shutdown())
	assert.Equal(t, []string{"Init", "Shutdown"}, c.CommandNames())
	c.ResetCommands()
	assert.Empty(t, c.Commands())
}

func TestAutomaticCompletion(t *testing.T) {
	c, s := newController(t)
	require.NoError(t, c.SetScanEnable(true, false))
	assert.True(t, c.Scanning())
	assert.Equal(t, []bluetooth.ControllerEvent{
		bluetooth.CommandCompleteEvent{Opcode: bluetooth.OpcodeSetScanEnable, Enable: true},
	}, s.events)
	assert.Zero(t, c.PendingCompletions())
}

func TestManualCompletion(t *testing.T) {
	c, s := newController(t, hcisim.WithManualCompletion())
	require.NoError(t, c.SetScanEnable(true, false))
	require.NoError(t, c.SetScanEnable(false, false))
	assert.False(t, c.Scanning(), "state changes when the command is received")
	assert.Empty(t, s.events)
	assert.Equal(t, 2, c.PendingCompletions())

	require.True(t, c.Complete())
	assert.Equal(t, []bluetooth.ControllerEvent{
		bluetooth.CommandCompleteEvent{Opcode: bluetooth.OpcodeSetScanEnable, Enable: true},
	}, s.events)
	c.CompleteAll()
	assert.Len(t, s.events, 2)
	assert.False(t, c.Complete())
}

func TestFailNext(t *testing.T) {
	c, s := newController(t)
	c.FailNext(bluetooth.OpcodeSetAdvertisingEnable, bluetooth.StatusLimitReached)
	entries := []bluetooth.AdvertisingEnableEntry{{Handle: bluetooth.LegacyAdvertisingHandle}}

	require.NoError(t, c.SetAdvertisingEnable(true, entries))
	assert.False(t, c.Advertising(bluetooth.LegacyAdvertisingHandle))
	require.NoError(t, c.SetAdvertisingEnable(true, entries))
	assert.True(t, c.Advertising(bluetooth.LegacyAdvertisingHandle))

	require.Len(t, s.events, 2)
	assert.Equal(t, bluetooth.StatusLimitReached, s.events[0].(bluetooth.CommandCompleteEvent).Status)
	assert.Equal(t, bluetooth.StatusSuccess, s.events[1].(bluetooth.CommandCompleteEvent).Status)
}

func TestAdvertisingSets(t *testing.T) {
	c, _ := newController(t)
	params := bluetooth.DefaultAdvertisingParameters()
	params.UseLegacyPDU = false
	params.Type = bluetooth.AdvertisingNonConnectableUndirected

	assert.Error(t, c.SetAdvertisingEnable(true, []bluetooth.AdvertisingEnableEntry{{Handle: 3}}), "unknown set")
	require.NoError(t, c.SetAdvertisingParameters(3, params))
	require.NoError(t, c.SetAdvertisingData(3, []byte{0x02, 0x01, 0x06}))
	require.NoError(t, c.SetAdvertisingEnable(true, []bluetooth.AdvertisingEnableEntry{{Handle: 3, MaxEvents: 5}}))

	set, ok := c.Set(3)
	require.True(t, ok)
	assert.True(t, set.Enabled)
	assert.Equal(t, uint8(5), set.MaxEvents)
	assert.Equal(t, []byte{0x02, 0x01, 0x06}, set.Data)

	addr := bluetooth.MAC{1, 2, 3, 4, 5, 0x06}
	assert.Error(t, c.SetAdvertisingSetRandomAddress(3, addr), "set enabled")
	assert.Error(t, c.RemoveAdvertisingSet(3), "set enabled")

	require.NoError(t, c.SetAdvertisingEnable(false, []bluetooth.AdvertisingEnableEntry{{Handle: 3}}))
	require.NoError(t, c.SetAdvertisingSetRandomAddress(3, addr))
	set, _ = c.Set(3)
	assert.Equal(t, addr, set.Address)
	require.NoError(t, c.RemoveAdvertisingSet(3))
	_, ok = c.Set(3)
	assert.False(t, ok)
}

func TestConnectToSet(t *testing.T) {
	c, s := newController(t)
	peer := bluetooth.Address{MAC: bluetooth.MAC{1, 2, 3, 4, 5, 6}}
	assert.Error(t, c.ConnectToSet(bluetooth.LegacyAdvertisingHandle, peer, 1), "not advertising")

	require.NoError(t, c.SetAdvertisingEnable(true, []bluetooth.AdvertisingEnableEntry{{Handle: bluetooth.LegacyAdvertisingHandle}}))
	s.events = nil
	require.NoError(t, c.ConnectToSet(bluetooth.LegacyAdvertisingHandle, peer, 7))
	assert.False(t, c.Advertising(bluetooth.LegacyAdvertisingHandle))

	require.Len(t, s.events, 2)
	conn, ok := s.events[0].(bluetooth.ConnectionCompleteEvent)
	require.True(t, ok)
	assert.Equal(t, peer, conn.Peer)
	assert.Equal(t, bluetooth.ConnectionHandle(7), conn.Handle)
	assert.Equal(t, bluetooth.AdvertisingSetTerminatedEvent{
		Status:           bluetooth.StatusSuccess,
		Handle:           bluetooth.LegacyAdvertisingHandle,
		ConnectionHandle: 7,
	}, s.events[1])
}

func TestInjectAdvertisingReport(t *testing.T) {
	c, s := newController(t)
	peer := bluetooth.Address{MAC: bluetooth.MAC{1, 2, 3, 4, 5, 6}}
	data := []byte{0x02, 0x01, 0x06}
	assert.Error(t, c.InjectAdvertisingReport(peer, -40, data), "not scanning")

	require.NoError(t, c.SetScanEnable(true, false))
	s.events = nil
	require.NoError(t, c.InjectAdvertisingReport(peer, -40, data))
	data[0] = 0
	require.Len(t, s.events, 1)
	report := s.events[0].(bluetooth.AdvertisingReportEvent)
	assert.Equal(t, peer, report.Peer)
	assert.Equal(t, int8(-40), report.RSSI)
	assert.Equal(t, []byte{0x02, 0x01, 0x06}, report.Data)
}

func TestRandomAddress(t *testing.T) {
	c, _ := newController(t)
	addr := bluetooth.MAC{1, 2, 3, 4, 5, 0x46}
	require.NoError(t, c.SetRandomAddress(addr))
	assert.Equal(t, addr, c.RandomAddress())

	require.NoError(t, c.SetScanEnable(true, false))
	assert.Error(t, c.SetRandomAddress(bluetooth.MAC{}), "scanning")
}

func TestResolvingList(t *testing.T) {
	caps := hcisim.DefaultCapabilities()
	caps.ResolvingListSize = 1
	c, s := newController(t, hcisim.WithCapabilities(caps))
	first := bluetooth.Address{MAC: bluetooth.MAC{1, 0, 0, 0, 0, 0xC0}, Type: bluetooth.AddressTypeRandomStaticIdentity}
	second := bluetooth.Address{MAC: bluetooth.MAC{2, 0, 0, 0, 0, 0xC0}, Type: bluetooth.AddressTypeRandomStaticIdentity}

	require.NoError(t, c.AddDeviceToResolvingList(first, bluetooth.IRK{1}, bluetooth.IRK{2}))
	require.NoError(t, c.AddDeviceToResolvingList(second, bluetooth.IRK{1}, bluetooth.IRK{2}))
	assert.Equal(t, []bluetooth.Address{first}, c.ResolvingList())
	require.NoError(t, c.RemoveDeviceFromResolvingList(second))
	require.NoError(t, c.SetAddressResolutionEnable(true))
	assert.True(t, c.AddressResolutionEnabled())
	require.NoError(t, c.ClearResolvingList())
	assert.Empty(t, c.ResolvingList())

	var statuses []bluetooth.Status
	for _, ev := range s.events {
		statuses = append(statuses, ev.(bluetooth.CommandCompleteEvent).Status)
	}
	assert.Equal(t, []bluetooth.Status{
		bluetooth.StatusSuccess,
		bluetooth.StatusMemoryCapacityExceeded,
		bluetooth.StatusUnknownConnectionID,
		bluetooth.StatusSuccess,
		bluetooth.StatusSuccess,
	}, statuses)
}

func TestNoAddressResolution(t *testing.T) {
	caps := hcisim.DefaultCapabilities()
	caps.AddressResolution = false
	c, s := newController(t, hcisim.WithCapabilities(caps))
	assert.ErrorIs(t, c.SetAddressResolutionEnable(true), bluetooth.StatusUnknownCommand)
	assert.Empty(t, s.events)
}
