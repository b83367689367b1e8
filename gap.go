package bluetooth

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Gap drives advertising sets, scanning and connection establishment on the
// controller. Requests return once the controller accepted them; their
// outcome is reported later to the EventHandler.
//
// Like every host object it must only be used from the event pump goroutine,
// which includes event handlers.
type Gap struct {
	ctrl    Controller
	caps    ControllerCapabilities
	cfg     *Config
	queue   *eventQueue
	ticker  Ticker
	privacy *PrivateAddressController
	log     logrus.FieldLogger
	handler EventHandler

	// numSets is the number of usable handles, legacy handle included.
	numSets int
	sets    []advertisingSet

	existing          handleSet
	active            handleSet
	periodic          handleSet
	connectable       handleSet
	exceedsActiveMax  handleSet
	pendingEnable     handleSet
	pendingDisable    handleSet
	periodicRequested handleSet
	addressRefresh    handleSet

	outstandingStarts int

	scan scanState

	initiating bool
	syncing    bool

	privacyEnabled       bool
	privacyEnablePending bool

	reports     *pendingList[AdvertisingReportEvent]
	connections *pendingList[ConnectionCompleteEvent]
}

type advertisingSet struct {
	params AdvertisingParameters

	maxDuration time.Duration
	maxEvents   uint8
	timer       Timer

	// stopReason is reported when the pending disable completes.
	stopReason AdvertisingEndReason
	// terminated is set when the controller stopped the set while a disable
	// was pending.
	terminated bool

	payloadLen      int
	scanResponseLen int

	periodicConfigured bool
	periodicLen        int

	address    MAC
	hasAddress bool
}

func newGap(ctrl Controller, caps ControllerCapabilities, cfg *Config, queue *eventQueue, ticker Ticker, privacy *PrivateAddressController, log logrus.FieldLogger) *Gap {
	numSets := cfg.MaxAdvertisingSets + 1
	if caps.MaxAdvertisingSets > 0 && caps.MaxAdvertisingSets < numSets {
		numSets = caps.MaxAdvertisingSets
	}
	if !caps.ExtendedAdvertising {
		numSets = 1
	}
	g := &Gap{
		ctrl:        ctrl,
		caps:        caps,
		cfg:         cfg,
		queue:       queue,
		ticker:      ticker,
		privacy:     privacy,
		log:         log.WithField("component", "gap"),
		handler:     NoopEventHandler{},
		numSets:     numSets,
		sets:        make([]advertisingSet, numSets),
		reports:     newPendingList[AdvertisingReportEvent](cfg.PendingEventListSize),
		connections: newPendingList[ConnectionCompleteEvent](cfg.PendingEventListSize),
	}
	g.scan.params = DefaultScanParameters()

	g.existing.set(LegacyAdvertisingHandle)
	g.sets[LegacyAdvertisingHandle].params = DefaultAdvertisingParameters()
	g.connectable.set(LegacyAdvertisingHandle)

	privacy.onAddressesGenerated = g.onPrivateAddressesGenerated
	privacy.onAddressResolved = g.onAddressResolved
	privacy.onResolutionEnabled = func(bool) { g.checkPrivacyEnabled() }
	return g
}

// SetEventHandler sets the handler of GAP events. A nil handler ignores them.
func (g *Gap) SetEventHandler(h EventHandler) {
	if h == nil {
		h = NoopEventHandler{}
	}
	g.handler = h
}

// MaxAdvertisingSetNumber returns the number of advertising sets that can
// exist at the same time, legacy set included.
func (g *Gap) MaxAdvertisingSetNumber() int {
	return g.numSets
}

// MaxAdvertisingDataLength returns the largest payload of an advertising set.
func (g *Gap) MaxAdvertisingDataLength() int {
	return g.caps.MaxAdvertisingDataLength
}

// MaxActiveSetAdvertisingDataLength returns the largest payload that can be
// set while the set is advertising.
func (g *Gap) MaxActiveSetAdvertisingDataLength() int {
	return g.caps.MaxActiveSetAdvertisingDataLength
}

// CreateAdvertisingSet creates an advertising set with the given parameters
// and returns its handle.
func (g *Gap) CreateAdvertisingSet(params AdvertisingParameters) (AdvertisingHandle, error) {
	if err := params.Validate(); err != nil {
		return InvalidAdvertisingHandle, err
	}
	if g.existing.count() >= g.numSets {
		return InvalidAdvertisingHandle, fmt.Errorf("%d advertising sets in use: %w", g.numSets, ErrResourceExhausted)
	}

	handle := InvalidAdvertisingHandle
	for h := 1; h < g.numSets; h++ {
		if !g.existing.has(AdvertisingHandle(h)) {
			handle = AdvertisingHandle(h)
			break
		}
	}
	if handle == InvalidAdvertisingHandle {
		panic("bluetooth: advertising set pool corrupted")
	}

	if err := g.ctrl.SetAdvertisingParameters(handle, params); err != nil {
		return InvalidAdvertisingHandle, fmt.Errorf("set advertising parameters: %w", err)
	}

	g.sets[handle] = advertisingSet{params: params}
	g.existing.set(handle)
	g.connectable.assign(handle, params.Type.IsConnectable())
	g.log.WithField("handle", handle).Debug("advertising set created")
	return handle, nil
}

// DestroyAdvertisingSet destroys an inactive advertising set. The legacy set
// cannot be destroyed.
func (g *Gap) DestroyAdvertisingSet(handle AdvertisingHandle) error {
	if handle == LegacyAdvertisingHandle {
		return fmt.Errorf("legacy advertising set cannot be destroyed: %w", ErrOperationNotPermitted)
	}
	if err := g.checkExisting(handle); err != nil {
		return err
	}
	if g.active.has(handle) || g.pendingEnable.has(handle) || g.pendingDisable.has(handle) ||
		g.periodic.has(handle) {
		return fmt.Errorf("advertising set %d is active: %w", handle, ErrInvalidState)
	}

	if err := g.ctrl.RemoveAdvertisingSet(handle); err != nil {
		return fmt.Errorf("remove advertising set: %w", err)
	}

	g.sets[handle] = advertisingSet{}
	g.existing.clear(handle)
	g.connectable.clear(handle)
	g.exceedsActiveMax.clear(handle)
	g.periodicRequested.clear(handle)
	g.addressRefresh.clear(handle)
	g.log.WithField("handle", handle).Debug("advertising set destroyed")
	return nil
}

// SetAdvertisingParameters changes the parameters of an advertising set.
func (g *Gap) SetAdvertisingParameters(handle AdvertisingHandle, params AdvertisingParameters) error {
	if err := g.checkExisting(handle); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if handle == LegacyAdvertisingHandle && !params.UseLegacyPDU {
		return fmt.Errorf("legacy advertising set needs legacy PDUs: %w", ErrInvalidParam)
	}
	set := &g.sets[handle]
	if params.UseLegacyPDU && (set.payloadLen > LegacyAdvertisingDataMaxLength || set.scanResponseLen > LegacyAdvertisingDataMaxLength) {
		return fmt.Errorf("payload too long for legacy PDUs: %w", ErrInvalidParam)
	}
	if params.Type.IsConnectable() && g.exceedsActiveMax.has(handle) {
		return fmt.Errorf("payload too long for a connectable set: %w", ErrInvalidParam)
	}

	if err := g.ctrl.SetAdvertisingParameters(handle, params); err != nil {
		return fmt.Errorf("set advertising parameters: %w", err)
	}

	wasConnectable := g.connectable.has(handle)
	set.params = params
	g.connectable.assign(handle, params.Type.IsConnectable())
	if g.privacyEnabled && params.OwnAddressType.usesPrivateAddress() && wasConnectable != params.Type.IsConnectable() {
		// The kind of private address follows connectability.
		g.refreshSetAddress(handle)
	}
	return nil
}

// SetAdvertisingPayload sets the advertising data of a set.
func (g *Gap) SetAdvertisingPayload(handle AdvertisingHandle, payload []byte) error {
	return g.setPayload(handle, payload, false)
}

// SetAdvertisingScanResponse sets the scan response data of a set.
func (g *Gap) SetAdvertisingScanResponse(handle AdvertisingHandle, payload []byte) error {
	return g.setPayload(handle, payload, true)
}

func (g *Gap) setPayload(handle AdvertisingHandle, payload []byte, scanResponse bool) error {
	if err := g.checkExisting(handle); err != nil {
		return err
	}
	set := &g.sets[handle]
	limit := g.caps.MaxAdvertisingDataLength
	if set.params.UseLegacyPDU {
		limit = LegacyAdvertisingDataMaxLength
	}
	if len(payload) > limit {
		return fmt.Errorf("payload of %d bytes above %d: %w", len(payload), limit, ErrInvalidParam)
	}
	running := g.active.has(handle) || g.pendingEnable.has(handle)
	if running && len(payload) > g.caps.MaxActiveSetAdvertisingDataLength {
		return fmt.Errorf("payload of %d bytes above %d while advertising: %w",
			len(payload), g.caps.MaxActiveSetAdvertisingDataLength, ErrInvalidState)
	}

	var err error
	if scanResponse {
		err = g.ctrl.SetScanResponseData(handle, payload)
	} else {
		err = g.ctrl.SetAdvertisingData(handle, payload)
	}
	if err != nil {
		return fmt.Errorf("set advertising data: %w", err)
	}

	if scanResponse {
		set.scanResponseLen = len(payload)
	} else {
		set.payloadLen = len(payload)
	}
	maxActive := g.caps.MaxActiveSetAdvertisingDataLength
	g.exceedsActiveMax.assign(handle, set.payloadLen > maxActive || set.scanResponseLen > maxActive)
	return nil
}

// StartAdvertising starts an advertising set. The set stops after
// maxDuration, when not zero, or after maxEvents advertising events, when not
// zero. OnAdvertisingStart reports the outcome.
func (g *Gap) StartAdvertising(handle AdvertisingHandle, maxDuration time.Duration, maxEvents uint8) error {
	if err := g.checkExisting(handle); err != nil {
		return err
	}
	if g.pendingEnable.has(handle) || g.pendingDisable.has(handle) {
		return fmt.Errorf("advertising set %d has a command in progress: %w", handle, ErrInvalidState)
	}
	if g.active.has(handle) {
		return fmt.Errorf("advertising set %d already active: %w", handle, ErrInvalidState)
	}
	if g.outstandingStarts >= g.cfg.MaxOutstandingAdvertisingStartCommands {
		return fmt.Errorf("%d start commands outstanding: %w", g.outstandingStarts, ErrResourceExhausted)
	}
	if maxDuration < 0 {
		return fmt.Errorf("negative advertising duration: %w", ErrInvalidParam)
	}

	set := &g.sets[handle]
	log := g.log.WithField("handle", handle)
	if g.exceedsActiveMax.has(handle) {
		// A connection ends advertising before chained PDUs carrying the
		// rest of the payload can be sent.
		if g.connectable.has(handle) {
			return fmt.Errorf("connectable set payload above %d bytes: %w",
				g.caps.MaxActiveSetAdvertisingDataLength, ErrInvalidParam)
		}
		log.Debug("payload exceeds the active set limit, updates are restricted while advertising")
	}
	if err := g.programSetAddress(handle); err != nil {
		return err
	}

	err := g.ctrl.SetAdvertisingEnable(true, []AdvertisingEnableEntry{{Handle: handle, MaxEvents: maxEvents}})
	if err != nil {
		return fmt.Errorf("enable advertising: %w", err)
	}

	set.maxDuration = maxDuration
	set.maxEvents = maxEvents
	set.terminated = false
	g.active.set(handle)
	g.pendingEnable.set(handle)
	g.outstandingStarts++
	log.WithFields(logrus.Fields{"duration": maxDuration, "max_events": maxEvents}).Debug("advertising start requested")
	return nil
}

// StopAdvertising stops an active advertising set. OnAdvertisingEnd reports
// the outcome.
func (g *Gap) StopAdvertising(handle AdvertisingHandle) error {
	if err := g.checkExisting(handle); err != nil {
		return err
	}
	if g.pendingEnable.has(handle) || g.pendingDisable.has(handle) {
		return fmt.Errorf("advertising set %d has a command in progress: %w", handle, ErrInvalidState)
	}
	if !g.active.has(handle) {
		return fmt.Errorf("advertising set %d not active: %w", handle, ErrInvalidState)
	}
	return g.disable(handle, AdvertisingEndRequested)
}

// IsAdvertisingActive reports whether the set advertises, or was requested
// to.
func (g *Gap) IsAdvertisingActive(handle AdvertisingHandle) bool {
	return g.validHandle(handle) && g.active.has(handle)
}

func (g *Gap) disable(handle AdvertisingHandle, reason AdvertisingEndReason) error {
	if err := g.ctrl.SetAdvertisingEnable(false, []AdvertisingEnableEntry{{Handle: handle}}); err != nil {
		return fmt.Errorf("disable advertising: %w", err)
	}
	set := &g.sets[handle]
	g.stopSetTimer(set)
	set.stopReason = reason
	g.pendingDisable.set(handle)
	g.log.WithFields(logrus.Fields{"handle": handle, "reason": reason}).Debug("advertising stop requested")
	return nil
}

func (g *Gap) validHandle(handle AdvertisingHandle) bool {
	return int(handle) < g.numSets
}

func (g *Gap) checkExisting(handle AdvertisingHandle) error {
	if !g.validHandle(handle) || !g.existing.has(handle) {
		return fmt.Errorf("no advertising set %d: %w", handle, ErrInvalidParam)
	}
	return nil
}

func (g *Gap) stopSetTimer(set *advertisingSet) {
	if set.timer != nil {
		set.timer.Stop()
		set.timer = nil
	}
}

func (g *Gap) onAdvertisingTimeout(handle AdvertisingHandle) {
	g.sets[handle].timer = nil
	if !g.active.has(handle) || g.pendingDisable.has(handle) {
		return
	}
	if err := g.disable(handle, AdvertisingEndTimeout); err != nil {
		g.log.WithError(err).WithField("handle", handle).Warn("cannot stop advertising after timeout")
	}
}

func (g *Gap) handleAdvertisingEnableComplete(ev CommandCompleteEvent) {
	handle := ev.Handle
	if !g.validHandle(handle) {
		g.log.WithField("handle", handle).Warn("advertising completion for unknown handle")
		return
	}
	set := &g.sets[handle]
	log := g.log.WithFields(logrus.Fields{"handle": handle, "status": ev.Status})

	if ev.Enable {
		if !g.pendingEnable.has(handle) {
			log.Warn("unexpected advertising enable completion")
			return
		}
		g.pendingEnable.clear(handle)
		g.outstandingStarts--

		if set.terminated {
			// The controller already stopped the set.
			set.terminated = false
			g.handler.OnAdvertisingStart(AdvertisingStartEvent{Handle: handle, Status: ev.Status})
			return
		}
		if ev.Status != StatusSuccess {
			log.Warn("advertising start failed")
			g.active.clear(handle)
			g.handler.OnAdvertisingStart(AdvertisingStartEvent{Handle: handle, Status: ev.Status})
			return
		}
		log.Debug("advertising started")
		if set.maxDuration > 0 {
			set.timer = g.queue.afterFunc(g.ticker, set.maxDuration, func() {
				g.onAdvertisingTimeout(handle)
			})
		}
		if g.periodicRequested.has(handle) {
			g.periodicRequested.clear(handle)
			g.enablePeriodic(handle)
		}
		g.handler.OnAdvertisingStart(AdvertisingStartEvent{Handle: handle, Status: StatusSuccess})
		return
	}

	if !g.pendingDisable.has(handle) {
		log.Warn("unexpected advertising disable completion")
		return
	}
	g.pendingDisable.clear(handle)
	if set.terminated {
		// OnAdvertisingEnd was raised on termination.
		set.terminated = false
		return
	}
	if ev.Status != StatusSuccess {
		log.Warn("advertising stop failed")
		g.handler.OnAdvertisingEnd(AdvertisingEndEvent{
			Handle:           handle,
			Reason:           set.stopReason,
			Status:           ev.Status,
			ConnectionHandle: InvalidConnectionHandle,
		})
		return
	}
	log.Debug("advertising stopped")
	g.setStopped(handle)
	g.handler.OnAdvertisingEnd(AdvertisingEndEvent{
		Handle:           handle,
		Reason:           set.stopReason,
		Status:           StatusSuccess,
		ConnectionHandle: InvalidConnectionHandle,
	})
}

func (g *Gap) handleAdvertisingSetTerminated(ev AdvertisingSetTerminatedEvent) {
	handle := ev.Handle
	if !g.validHandle(handle) || !g.active.has(handle) {
		g.log.WithField("handle", handle).Warn("termination of an inactive advertising set")
		return
	}
	set := &g.sets[handle]
	g.stopSetTimer(set)
	if g.pendingDisable.has(handle) || g.pendingEnable.has(handle) {
		set.terminated = true
	}

	reason := AdvertisingEndError
	switch {
	case ev.Status == StatusSuccess:
		reason = AdvertisingEndConnection
	case ev.Status == StatusLimitReached:
		reason = AdvertisingEndMaxEvents
	case ev.Status == StatusAdvertisingTimeout:
		reason = AdvertisingEndTimeout
	}
	g.log.WithFields(logrus.Fields{
		"handle": handle,
		"reason": reason,
		"events": ev.CompletedEvents,
	}).Debug("advertising set terminated")

	g.setStopped(handle)
	status := ev.Status
	if reason != AdvertisingEndError {
		status = StatusSuccess
	}
	g.handler.OnAdvertisingEnd(AdvertisingEndEvent{
		Handle:           handle,
		Reason:           reason,
		Status:           status,
		ConnectionHandle: ev.ConnectionHandle,
		CompletedEvents:  ev.CompletedEvents,
	})
}

// setStopped marks a set inactive and applies a deferred address refresh.
func (g *Gap) setStopped(handle AdvertisingHandle) {
	g.active.clear(handle)
	if g.addressRefresh.has(handle) {
		if err := g.programSetAddress(handle); err != nil {
			g.log.WithError(err).WithField("handle", handle).Warn("cannot refresh advertising address")
		}
	}
}

// dispatch routes a controller event.
func (g *Gap) dispatch(ev ControllerEvent) {
	switch ev := ev.(type) {
	case CommandCompleteEvent:
		switch ev.Opcode {
		case OpcodeSetAdvertisingEnable:
			g.handleAdvertisingEnableComplete(ev)
		case OpcodeSetScanEnable:
			g.handleScanEnableComplete(ev)
		default:
			g.privacy.handleCommandComplete(ev)
		}
	case AdvertisingSetTerminatedEvent:
		g.handleAdvertisingSetTerminated(ev)
	case ScanRequestReceivedEvent:
		g.handler.OnScanRequestReceived(ev)
	case AdvertisingReportEvent:
		g.handleAdvertisingReport(ev)
	case ConnectionCompleteEvent:
		g.handleConnectionComplete(ev)
	case PeriodicSyncEstablishedEvent:
		g.syncing = false
		g.handler.OnPeriodicAdvertisingSyncEstablished(ev)
	case PeriodicAdvertisingReportEvent:
		g.handler.OnPeriodicAdvertisingReport(ev)
	case PeriodicSyncLostEvent:
		g.handler.OnPeriodicAdvertisingSyncLoss(ev)
	case PhyUpdateCompleteEvent:
		g.handler.OnPhyUpdateComplete(ev)
	default:
		g.log.Warnf("unhandled controller event %T", ev)
	}
}

func (g *Gap) shutdown() {
	for h := range g.sets {
		g.stopSetTimer(&g.sets[h])
	}
	g.stopScanTimer()
	g.reports.reset()
	g.connections.reset()
}
