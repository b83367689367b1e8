package bluetooth

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type scanState struct {
	params ScanParameters

	// active is set once a scan start is accepted, and cleared on stop or
	// on a failed start.
	active         bool
	pendingEnable  bool
	pendingDisable bool
	timer          Timer

	// addressRefresh is set when the random address rotated while scanning
	// or initiating.
	addressRefresh bool
}

// SetScanParameters configures scanning. It cannot be called while
// scanning.
func (g *Gap) SetScanParameters(params ScanParameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if g.scan.active || g.scan.pendingDisable {
		return fmt.Errorf("scanning: %w", ErrInvalidState)
	}
	if err := g.ctrl.SetScanParameters(params); err != nil {
		return fmt.Errorf("set scan parameters: %w", err)
	}
	g.scan.params = params
	return nil
}

// StartScan starts scanning. Advertising reports are delivered to
// OnAdvertisingReport. When duration is not zero the scan stops after it and
// OnScanTimeout is raised.
func (g *Gap) StartScan(duration time.Duration, filterDuplicates bool) error {
	if g.scan.active || g.scan.pendingEnable || g.scan.pendingDisable {
		return fmt.Errorf("scan already started: %w", ErrInvalidState)
	}
	if duration < 0 {
		return fmt.Errorf("negative scan duration: %w", ErrInvalidParam)
	}
	if err := g.programRandomAddress(g.scan.params.OwnAddressType); err != nil {
		return err
	}
	if err := g.ctrl.SetScanEnable(true, filterDuplicates); err != nil {
		return fmt.Errorf("enable scan: %w", err)
	}
	g.scan.active = true
	g.scan.pendingEnable = true
	if duration > 0 {
		g.scan.timer = g.queue.afterFunc(g.ticker, duration, g.onScanTimeout)
	}
	g.log.WithFields(logrus.Fields{
		"duration":          duration,
		"filter_duplicates": filterDuplicates,
	}).Debug("scan start requested")
	return nil
}

// StopScan stops scanning.
func (g *Gap) StopScan() error {
	if !g.scan.active {
		return fmt.Errorf("not scanning: %w", ErrInvalidState)
	}
	return g.stopScan()
}

// IsScanning reports whether a scan is started.
func (g *Gap) IsScanning() bool {
	return g.scan.active
}

func (g *Gap) stopScan() error {
	if err := g.ctrl.SetScanEnable(false, false); err != nil {
		return fmt.Errorf("disable scan: %w", err)
	}
	g.stopScanTimer()
	g.scan.active = false
	g.scan.pendingDisable = true
	return nil
}

func (g *Gap) stopScanTimer() {
	if g.scan.timer != nil {
		g.scan.timer.Stop()
		g.scan.timer = nil
	}
}

func (g *Gap) onScanTimeout() {
	g.scan.timer = nil
	if !g.scan.active {
		return
	}
	if err := g.stopScan(); err != nil {
		g.log.WithError(err).Warn("cannot stop scan after timeout")
		return
	}
	g.handler.OnScanTimeout(ScanTimeoutEvent{})
}

func (g *Gap) handleScanEnableComplete(ev CommandCompleteEvent) {
	log := g.log.WithField("status", ev.Status)
	if ev.Enable {
		g.scan.pendingEnable = false
		if ev.Status != StatusSuccess {
			log.Warn("scan start failed")
			g.stopScanTimer()
			g.scan.active = false
		}
		return
	}
	g.scan.pendingDisable = false
	if ev.Status != StatusSuccess {
		log.Warn("scan stop failed")
	}
	if g.scan.addressRefresh && !g.initiating {
		g.scan.addressRefresh = false
		if err := g.programRandomAddress(g.scan.params.OwnAddressType); err != nil {
			log.WithError(err).Warn("cannot refresh scan address")
		}
	}
}

// handleAdvertisingReport delivers a report, once its peer address is
// resolved when the host resolves addresses.
func (g *Gap) handleAdvertisingReport(ev AdvertisingReportEvent) {
	if !g.hostResolves(ev.Peer) {
		g.handler.OnAdvertisingReport(ev)
		return
	}
	res, complete, err := g.privacy.ResolveAddressOnHost(ev.Peer.MAC)
	if err != nil {
		g.log.WithError(err).WithField("peer", ev.Peer).Warn("cannot resolve peer address, delivering report unresolved")
		g.handler.OnAdvertisingReport(ev)
		return
	}
	if complete {
		applyResolution(&ev.PeerIdentity, &ev.PeerResolved, res)
		g.handler.OnAdvertisingReport(ev)
		return
	}
	// The data belongs to the controller buffer.
	ev.Data = append([]byte(nil), ev.Data...)
	if !g.reports.push(ev) {
		g.log.WithField("peer", ev.Peer).Warn("pending report list full, dropping advertising report")
	}
}

// Connect initiates a connection to peer. OnConnectionComplete reports the
// outcome.
func (g *Gap) Connect(peer Address, params ConnectionParameters) error {
	if g.initiating {
		return fmt.Errorf("connection already in progress: %w", ErrInvalidState)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if err := g.programRandomAddress(params.OwnAddressType); err != nil {
		return err
	}
	if err := g.ctrl.CreateConnection(peer, params); err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	g.initiating = true
	g.log.WithField("peer", peer).Debug("connection requested")
	return nil
}

// CancelConnect asks the controller to abort the connection in progress.
// The attempt still ends with OnConnectionComplete, which reports a success
// if the connection was established first.
func (g *Gap) CancelConnect() error {
	if !g.initiating {
		return fmt.Errorf("no connection in progress: %w", ErrInvalidState)
	}
	if err := g.ctrl.CancelConnection(); err != nil {
		return fmt.Errorf("cancel connection: %w", err)
	}
	return nil
}

func (g *Gap) handleConnectionComplete(ev ConnectionCompleteEvent) {
	if ev.Role == RoleCentral && g.initiating {
		g.initiating = false
		if g.scan.addressRefresh && !g.scan.active {
			g.scan.addressRefresh = false
			if err := g.programRandomAddress(g.scan.params.OwnAddressType); err != nil {
				g.log.WithError(err).Warn("cannot refresh random address")
			}
		}
	}
	g.log.WithFields(logrus.Fields{
		"status": ev.Status,
		"handle": ev.Handle,
		"role":   ev.Role,
		"peer":   ev.Peer,
	}).Debug("connection complete")

	if ev.Status != StatusSuccess || !g.hostResolves(ev.Peer) {
		g.handler.OnConnectionComplete(ev)
		return
	}
	res, complete, err := g.privacy.ResolveAddressOnHost(ev.Peer.MAC)
	if err != nil {
		g.log.WithError(err).WithField("peer", ev.Peer).Warn("cannot resolve peer address")
		g.handler.OnConnectionComplete(ev)
		return
	}
	if complete {
		applyResolution(&ev.PeerIdentity, &ev.PeerResolved, res)
		g.handler.OnConnectionComplete(ev)
		return
	}
	if !g.connections.push(ev) {
		// A connection is never dropped.
		g.log.WithField("peer", ev.Peer).Warn("pending connection list full, delivering connection unresolved")
		g.handler.OnConnectionComplete(ev)
	}
}

// CreateSync synchronizes with the periodic advertising of sid sent by
// advertiser. OnPeriodicAdvertisingSyncEstablished reports the outcome.
// timeout is the sync timeout in 10ms units.
func (g *Gap) CreateSync(advertiser Address, sid uint8, skip uint16, timeout uint16) error {
	if !g.caps.PeriodicAdvertising {
		return fmt.Errorf("controller lacks periodic advertising: %w", ErrOperationNotPermitted)
	}
	if g.syncing {
		return fmt.Errorf("sync creation already in progress: %w", ErrInvalidState)
	}
	switch {
	case sid > 0x0F:
		return fmt.Errorf("advertising SID %d above 15: %w", sid, ErrInvalidParam)
	case skip > 0x01F3:
		return fmt.Errorf("sync skip %d above 499: %w", skip, ErrInvalidParam)
	case timeout < 0x000A || timeout > 0x4000:
		return fmt.Errorf("sync timeout out of range: %w", ErrInvalidParam)
	}
	if err := g.ctrl.CreateSync(advertiser, sid, skip, timeout); err != nil {
		return fmt.Errorf("create sync: %w", err)
	}
	g.syncing = true
	return nil
}

// CancelCreateSync asks the controller to abort the sync creation in
// progress. The outcome is still reported by
// OnPeriodicAdvertisingSyncEstablished.
func (g *Gap) CancelCreateSync() error {
	if !g.syncing {
		return fmt.Errorf("no sync creation in progress: %w", ErrInvalidState)
	}
	if err := g.ctrl.CancelCreateSync(); err != nil {
		return fmt.Errorf("cancel create sync: %w", err)
	}
	return nil
}

// SetPhy requests the PHYs of a connection. OnPhyUpdateComplete reports the
// outcome.
func (g *Gap) SetPhy(conn ConnectionHandle, tx, rx PHY) error {
	if conn == InvalidConnectionHandle {
		return fmt.Errorf("invalid connection handle: %w", ErrInvalidParam)
	}
	for _, phy := range []PHY{tx, rx} {
		if phy < PHY1M || phy > PHYCoded {
			return fmt.Errorf("unknown PHY %v: %w", phy, ErrInvalidParam)
		}
	}
	if err := g.ctrl.SetPhy(conn, tx, rx); err != nil {
		return fmt.Errorf("set PHY: %w", err)
	}
	return nil
}

func applyResolution(identity *Address, resolved *bool, res AddressResolution) {
	if res.Resolved {
		*identity = res.Identity
		*resolved = true
	}
}
