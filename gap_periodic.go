package bluetooth

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// SetPeriodicAdvertisingParameters configures periodic advertising of an
// extended advertising set.
func (g *Gap) SetPeriodicAdvertisingParameters(handle AdvertisingHandle, params PeriodicAdvertisingParameters) error {
	if err := g.checkPeriodicCapable(handle); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if g.periodic.has(handle) {
		return fmt.Errorf("periodic advertising of set %d is active: %w", handle, ErrInvalidState)
	}
	if err := g.ctrl.SetPeriodicAdvertisingParameters(handle, params); err != nil {
		return fmt.Errorf("set periodic advertising parameters: %w", err)
	}
	g.sets[handle].periodicConfigured = true
	return nil
}

// SetPeriodicAdvertisingPayload sets the periodic advertising data of a set.
func (g *Gap) SetPeriodicAdvertisingPayload(handle AdvertisingHandle, payload []byte) error {
	if err := g.checkPeriodicCapable(handle); err != nil {
		return err
	}
	set := &g.sets[handle]
	if !set.periodicConfigured {
		return fmt.Errorf("periodic advertising of set %d not configured: %w", handle, ErrInvalidState)
	}
	if len(payload) > g.caps.MaxAdvertisingDataLength {
		return fmt.Errorf("payload of %d bytes above %d: %w", len(payload), g.caps.MaxAdvertisingDataLength, ErrInvalidParam)
	}
	if g.periodic.has(handle) && len(payload) > g.caps.MaxActiveSetAdvertisingDataLength {
		return fmt.Errorf("payload of %d bytes above %d while advertising: %w",
			len(payload), g.caps.MaxActiveSetAdvertisingDataLength, ErrInvalidState)
	}
	if err := g.ctrl.SetPeriodicAdvertisingData(handle, payload); err != nil {
		return fmt.Errorf("set periodic advertising data: %w", err)
	}
	set.periodicLen = len(payload)
	return nil
}

// StartPeriodicAdvertising starts periodic advertising of a set. When the set
// does not advertise yet, periodic advertising starts along with it.
func (g *Gap) StartPeriodicAdvertising(handle AdvertisingHandle) error {
	if err := g.checkPeriodicCapable(handle); err != nil {
		return err
	}
	if !g.sets[handle].periodicConfigured {
		return fmt.Errorf("periodic advertising of set %d not configured: %w", handle, ErrInvalidState)
	}
	if g.periodic.has(handle) || g.periodicRequested.has(handle) {
		return fmt.Errorf("periodic advertising of set %d already started: %w", handle, ErrInvalidState)
	}

	if !g.active.has(handle) || g.pendingEnable.has(handle) || g.pendingDisable.has(handle) {
		g.periodicRequested.set(handle)
		g.log.WithField("handle", handle).Debug("periodic advertising deferred until the set advertises")
		return nil
	}
	if err := g.ctrl.SetPeriodicAdvertisingEnable(handle, true); err != nil {
		return fmt.Errorf("enable periodic advertising: %w", err)
	}
	g.periodic.set(handle)
	return nil
}

// StopPeriodicAdvertising stops periodic advertising of a set.
func (g *Gap) StopPeriodicAdvertising(handle AdvertisingHandle) error {
	if err := g.checkExisting(handle); err != nil {
		return err
	}
	if g.periodicRequested.has(handle) {
		g.periodicRequested.clear(handle)
		return nil
	}
	if !g.periodic.has(handle) {
		return fmt.Errorf("periodic advertising of set %d not active: %w", handle, ErrInvalidState)
	}
	if err := g.ctrl.SetPeriodicAdvertisingEnable(handle, false); err != nil {
		return fmt.Errorf("disable periodic advertising: %w", err)
	}
	g.periodic.clear(handle)
	return nil
}

// IsPeriodicAdvertisingActive reports whether periodic advertising of the
// set is on the air.
func (g *Gap) IsPeriodicAdvertisingActive(handle AdvertisingHandle) bool {
	return g.validHandle(handle) && g.periodic.has(handle)
}

func (g *Gap) checkPeriodicCapable(handle AdvertisingHandle) error {
	if !g.caps.PeriodicAdvertising {
		return fmt.Errorf("controller lacks periodic advertising: %w", ErrOperationNotPermitted)
	}
	if handle == LegacyAdvertisingHandle {
		return fmt.Errorf("legacy advertising set cannot advertise periodically: %w", ErrOperationNotPermitted)
	}
	if err := g.checkExisting(handle); err != nil {
		return err
	}
	if g.sets[handle].params.UseLegacyPDU {
		return fmt.Errorf("periodic advertising needs extended PDUs: %w", ErrInvalidParam)
	}
	return nil
}

// enablePeriodic starts a deferred periodic advertising once its set
// advertises.
func (g *Gap) enablePeriodic(handle AdvertisingHandle) {
	log := g.log.WithField("handle", handle)
	if err := g.ctrl.SetPeriodicAdvertisingEnable(handle, true); err != nil {
		log.WithError(err).Warn("cannot start deferred periodic advertising")
		return
	}
	g.periodic.set(handle)
	log.WithFields(logrus.Fields{"len": g.sets[handle].periodicLen}).Debug("periodic advertising started")
}
