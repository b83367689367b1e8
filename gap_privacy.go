package bluetooth

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// EnablePrivacy turns privacy on or off. With privacy on, advertising sets,
// scans and connections whose own address type is not public use private
// addresses: resolvable for connectable sets, scans and connections,
// non-resolvable for the other sets. Peer addresses are resolved by the
// controller when it can, by the host otherwise.
//
// OnPrivacyEnabled is raised once the first private addresses are available
// and, if used, controller address resolution is on. Without a local IRK this
// waits for PrivateAddressController.SetLocalIRK.
func (g *Gap) EnablePrivacy(enable bool) error {
	if enable == g.privacyEnabled {
		return nil
	}
	if !enable {
		for h := 0; h < g.numSets; h++ {
			if g.active.has(AdvertisingHandle(h)) && g.sets[h].params.OwnAddressType.usesPrivateAddress() {
				return fmt.Errorf("advertising set %d uses a private address: %w", h, ErrInvalidState)
			}
		}
		g.privacyEnabled = false
		g.privacyEnablePending = false
		g.privacy.StopPrivateAddressGeneration()
		if g.privacy.IsControllerAddressResolutionEnabled() {
			if err := g.privacy.EnableControllerAddressResolution(false); err != nil {
				return err
			}
		}
		g.log.Debug("privacy disabled")
		return nil
	}

	g.privacyEnabled = true
	g.privacyEnablePending = true
	if g.caps.AddressResolution && !g.privacy.IsControllerAddressResolutionEnabled() {
		if err := g.privacy.EnableControllerAddressResolution(true); err != nil {
			return err
		}
	}
	g.privacy.StartPrivateAddressGeneration()
	g.checkPrivacyEnabled()
	return nil
}

// IsPrivacyEnabled reports whether privacy was enabled.
func (g *Gap) IsPrivacyEnabled() bool {
	return g.privacyEnabled
}

func (g *Gap) checkPrivacyEnabled() {
	if !g.privacyEnablePending || !g.privacy.IsGenerating() {
		return
	}
	if g.caps.AddressResolution && !g.privacy.IsControllerAddressResolutionEnabled() {
		return
	}
	g.privacyEnablePending = false
	g.log.Debug("privacy enabled")
	g.queue.schedule(g.handler.OnPrivacyEnabled)
}

// hostResolves reports whether the host must resolve peer.
func (g *Gap) hostResolves(peer Address) bool {
	return g.privacyEnabled && peer.IsResolvable() && !g.privacy.IsControllerAddressResolutionEnabled()
}

// privateAddressFor returns the private address used by a set.
func (g *Gap) privateAddressFor(handle AdvertisingHandle) (MAC, bool) {
	if g.connectable.has(handle) {
		return g.privacy.ResolvableAddress()
	}
	return g.privacy.NonResolvableAddress()
}

// programSetAddress loads the current private address of a set into the
// controller, if the set uses one.
func (g *Gap) programSetAddress(handle AdvertisingHandle) error {
	set := &g.sets[handle]
	if !g.privacyEnabled || !set.params.OwnAddressType.usesPrivateAddress() {
		g.addressRefresh.clear(handle)
		return nil
	}
	addr, ok := g.privateAddressFor(handle)
	if !ok {
		return fmt.Errorf("no private address available: %w", ErrInvalidState)
	}
	if set.hasAddress && set.address == addr {
		g.addressRefresh.clear(handle)
		return nil
	}
	if err := g.ctrl.SetAdvertisingSetRandomAddress(handle, addr); err != nil {
		return fmt.Errorf("set advertising set address: %w", err)
	}
	set.address = addr
	set.hasAddress = true
	g.addressRefresh.clear(handle)
	g.log.WithFields(logrus.Fields{"handle": handle, "address": addr}).Debug("advertising address set")
	return nil
}

// refreshSetAddress programs the new address of an inactive set, or defers
// it to the next stop of an active one.
func (g *Gap) refreshSetAddress(handle AdvertisingHandle) {
	if g.active.has(handle) || g.pendingEnable.has(handle) || g.pendingDisable.has(handle) {
		g.addressRefresh.set(handle)
		return
	}
	if err := g.programSetAddress(handle); err != nil {
		g.log.WithError(err).WithField("handle", handle).Warn("cannot refresh advertising address")
		g.addressRefresh.set(handle)
	}
}

// programRandomAddress loads the resolvable private address used for
// scanning and initiating.
func (g *Gap) programRandomAddress(own OwnAddressType) error {
	if !g.privacyEnabled || !own.usesPrivateAddress() {
		return nil
	}
	addr, ok := g.privacy.ResolvableAddress()
	if !ok {
		return fmt.Errorf("no private address available: %w", ErrInvalidState)
	}
	if err := g.ctrl.SetRandomAddress(addr); err != nil {
		return fmt.Errorf("set random address: %w", err)
	}
	return nil
}

func (g *Gap) onPrivateAddressesGenerated() {
	if g.privacyEnabled {
		for h := 0; h < g.numSets; h++ {
			handle := AdvertisingHandle(h)
			if g.existing.has(handle) && g.sets[h].params.OwnAddressType.usesPrivateAddress() {
				g.refreshSetAddress(handle)
			}
		}
		if g.scan.active || g.scan.pendingDisable || g.initiating {
			g.scan.addressRefresh = true
		} else if err := g.programRandomAddress(g.scan.params.OwnAddressType); err != nil {
			g.log.WithError(err).Warn("cannot refresh random address")
		}
	}
	g.checkPrivacyEnabled()
}

// onAddressResolved delivers the events that waited for peer.
func (g *Gap) onAddressResolved(peer MAC, res AddressResolution) {
	matches := func(p Address) bool { return p.MAC == peer && p.IsResolvable() }
	for {
		ev, ok := g.reports.pop(func(ev AdvertisingReportEvent) bool { return matches(ev.Peer) })
		if !ok {
			break
		}
		applyResolution(&ev.PeerIdentity, &ev.PeerResolved, res)
		g.handler.OnAdvertisingReport(ev)
	}
	for {
		ev, ok := g.connections.pop(func(ev ConnectionCompleteEvent) bool { return matches(ev.Peer) })
		if !ok {
			break
		}
		applyResolution(&ev.PeerIdentity, &ev.PeerResolved, res)
		g.handler.OnConnectionComplete(ev)
	}
}
