package hcisim

import (
	"fmt"

	bluetooth "tinygo.org/x/blehost"
)

// Inject posts an arbitrary controller event.
func (c *Controller) Inject(ev bluetooth.ControllerEvent) error {
	return c.inject(ev)
}

// InjectAdvertisingReport posts an advertising report, as received while
// scanning.
func (c *Controller) InjectAdvertisingReport(peer bluetooth.Address, rssi int8, data []byte) error {
	if !c.Scanning() {
		return fmt.Errorf("hcisim: not scanning")
	}
	return c.inject(bluetooth.AdvertisingReportEvent{
		Type:       bluetooth.ReportConnectable | bluetooth.ReportScannable | bluetooth.ReportLegacy,
		Peer:       peer,
		PrimaryPHY: bluetooth.PHY1M,
		TxPower:    127,
		RSSI:       rssi,
		SID:        0xFF,
		Data:       cloneBytes(data),
	})
}

// InjectScanRequest posts a scan request received by an advertising set.
func (c *Controller) InjectScanRequest(handle bluetooth.AdvertisingHandle, scanner bluetooth.Address) error {
	return c.inject(bluetooth.ScanRequestReceivedEvent{Handle: handle, Scanner: scanner})
}

// ConnectToSet simulates a peer connecting to an advertising set: the
// controller stops the set, then reports the connection and the
// termination of the set.
func (c *Controller) ConnectToSet(handle bluetooth.AdvertisingHandle, peer bluetooth.Address, conn bluetooth.ConnectionHandle) error {
	c.mu.Lock()
	set, ok := c.sets[handle]
	if !ok || !set.Enabled {
		c.mu.Unlock()
		return fmt.Errorf("hcisim: advertising set %d not enabled", handle)
	}
	set.Enabled = false
	c.mu.Unlock()

	err := c.inject(bluetooth.ConnectionCompleteEvent{
		Status:             bluetooth.StatusSuccess,
		Handle:             conn,
		Role:               bluetooth.RolePeripheral,
		Peer:               peer,
		AdvertisingHandle:  handle,
		Interval:           0x0018,
		SupervisionTimeout: 0x00C8,
	})
	if err != nil {
		return err
	}
	return c.inject(bluetooth.AdvertisingSetTerminatedEvent{
		Status:           bluetooth.StatusSuccess,
		Handle:           handle,
		ConnectionHandle: conn,
	})
}

// TerminateSet simulates the controller stopping an advertising set on its
// own, for instance with StatusLimitReached once its maximum number of
// events was sent.
func (c *Controller) TerminateSet(handle bluetooth.AdvertisingHandle, status bluetooth.Status) error {
	c.mu.Lock()
	set, ok := c.sets[handle]
	if !ok || !set.Enabled {
		c.mu.Unlock()
		return fmt.Errorf("hcisim: advertising set %d not enabled", handle)
	}
	set.Enabled = false
	events := set.MaxEvents
	c.mu.Unlock()

	return c.inject(bluetooth.AdvertisingSetTerminatedEvent{
		Status:           status,
		Handle:           handle,
		ConnectionHandle: bluetooth.InvalidConnectionHandle,
		CompletedEvents:  events,
	})
}

// CompleteConnection answers the pending CreateConnection.
func (c *Controller) CompleteConnection(peer bluetooth.Address, conn bluetooth.ConnectionHandle, status bluetooth.Status) error {
	c.mu.Lock()
	if !c.initiating {
		c.mu.Unlock()
		return fmt.Errorf("hcisim: no connection in progress")
	}
	c.initiating = false
	c.mu.Unlock()

	return c.inject(bluetooth.ConnectionCompleteEvent{
		Status:             status,
		Handle:             conn,
		Role:               bluetooth.RoleCentral,
		Peer:               peer,
		AdvertisingHandle:  bluetooth.InvalidAdvertisingHandle,
		Interval:           0x0018,
		SupervisionTimeout: 0x00C8,
	})
}

// EstablishSync answers the pending CreateSync.
func (c *Controller) EstablishSync(advertiser bluetooth.Address, sid uint8, syncHandle uint16) error {
	c.mu.Lock()
	if !c.syncing {
		c.mu.Unlock()
		return fmt.Errorf("hcisim: no sync creation in progress")
	}
	c.syncing = false
	c.mu.Unlock()

	return c.inject(bluetooth.PeriodicSyncEstablishedEvent{
		Status:     bluetooth.StatusSuccess,
		SyncHandle: syncHandle,
		SID:        sid,
		Advertiser: advertiser,
		PHY:        bluetooth.PHY1M,
		Interval:   0x0050,
	})
}

// InjectPeriodicReport posts periodic advertising data of a sync.
func (c *Controller) InjectPeriodicReport(syncHandle uint16, data []byte) error {
	return c.inject(bluetooth.PeriodicAdvertisingReportEvent{
		SyncHandle:   syncHandle,
		TxPower:      127,
		RSSI:         -60,
		DataComplete: true,
		Data:         cloneBytes(data),
	})
}

// LoseSync posts the loss of a sync.
func (c *Controller) LoseSync(syncHandle uint16) error {
	return c.inject(bluetooth.PeriodicSyncLostEvent{SyncHandle: syncHandle})
}
