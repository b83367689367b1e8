package bluetooth

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// ResolvingListAction is an operation on the resolving list of the
// controller.
type ResolvingListAction uint8

const (
	ResolvingListAdd ResolvingListAction = iota
	ResolvingListRemove
	ResolvingListClear
	// ResolvingListSetResolution enables or disables address resolution in
	// the controller.
	ResolvingListSetResolution
)

func (a ResolvingListAction) String() string {
	switch a {
	case ResolvingListAdd:
		return "add"
	case ResolvingListRemove:
		return "remove"
	case ResolvingListClear:
		return "clear"
	case ResolvingListSetResolution:
		return "set resolution"
	default:
		return "unknown"
	}
}

func (a ResolvingListAction) opcode() Opcode {
	switch a {
	case ResolvingListAdd:
		return OpcodeAddDeviceToResolvingList
	case ResolvingListRemove:
		return OpcodeRemoveDeviceFromResolvingList
	case ResolvingListClear:
		return OpcodeClearResolvingList
	default:
		return OpcodeSetAddressResolutionEnable
	}
}

// AddressResolution is the outcome of a peer address resolution.
type AddressResolution struct {
	// Identity is the identity address of the peer, only valid when
	// Resolved is true.
	Identity Address
	Resolved bool
}

// controlBlock is a resolving list operation waiting for the controller.
type controlBlock struct {
	action  ResolvingListAction
	peer    Address
	irk     IRK
	enable  bool
	cleared []resolvingListEntry
}

type resolvingListEntry struct {
	identity Address
	irk      IRK
}

// PrivateAddressController generates and rotates the private addresses of
// the local device and resolves the private addresses of peers.
//
// Like every host object it must only be used from the event pump goroutine.
type PrivateAddressController struct {
	ctrl   Controller
	caps   ControllerCapabilities
	queue  *eventQueue
	ticker Ticker
	rand   io.Reader
	log    logrus.FieldLogger

	handler PrivacyEventHandler

	// Hooks of the GAP, called before the handler.
	onAddressesGenerated func()
	onAddressResolved    func(peer MAC, res AddressResolution)
	onResolutionEnabled  func(enabled bool)

	localIRK    IRK
	hasLocalIRK bool

	generating    bool
	timeout       time.Duration
	timer         Timer
	resolvable    MAC
	nonResolvable MAC
	hasAddresses  bool

	entries    []resolvingListEntry
	maxEntries int

	pending  []controlBlock
	inFlight *controlBlock

	controllerResolution bool

	cache         *resolvedCache
	hostQueue     []MAC
	hostQueueSize int
}

func newPrivateAddressController(ctrl Controller, caps ControllerCapabilities, queue *eventQueue, ticker Ticker, rand io.Reader, cfg *Config, log logrus.FieldLogger) *PrivateAddressController {
	maxEntries := cfg.SecurityDatabaseMaxEntries
	if caps.AddressResolution && caps.ResolvingListSize > 0 && caps.ResolvingListSize < maxEntries {
		maxEntries = caps.ResolvingListSize
	}
	return &PrivateAddressController{
		ctrl:          ctrl,
		caps:          caps,
		queue:         queue,
		ticker:        ticker,
		rand:          rand,
		log:           log.WithField("component", "privacy"),
		handler:       NoopPrivacyEventHandler{},
		timeout:       cfg.PrivateAddressTimeout,
		maxEntries:    maxEntries,
		cache:         newResolvedCache(cfg.PrivacyResolvedCacheSize),
		hostQueue:     make([]MAC, 0, cfg.PrivacyResolvedCacheSize),
		hostQueueSize: cfg.PrivacyResolvedCacheSize,
	}
}

// SetEventHandler sets the handler of privacy events. A nil handler ignores
// them.
func (p *PrivateAddressController) SetEventHandler(h PrivacyEventHandler) {
	if h == nil {
		h = NoopPrivacyEventHandler{}
	}
	p.handler = h
}

// SetLocalIRK sets the identity resolving key of the local device. Address
// generation requested earlier starts now.
func (p *PrivateAddressController) SetLocalIRK(irk IRK) error {
	if irk.IsZero() {
		return fmt.Errorf("local IRK is zero: %w", ErrInvalidParam)
	}
	p.localIRK = irk
	p.hasLocalIRK = true
	if p.generating {
		p.stopTimer()
		p.rotate()
	}
	return nil
}

// LocalIRK returns the identity resolving key of the local device.
func (p *PrivateAddressController) LocalIRK() (IRK, bool) {
	return p.localIRK, p.hasLocalIRK
}

// StartPrivateAddressGeneration generates a resolvable and a non-resolvable
// private address, then renews them every timeout. Without a local IRK the
// generation is deferred until SetLocalIRK is called.
func (p *PrivateAddressController) StartPrivateAddressGeneration() {
	if p.generating {
		return
	}
	p.generating = true
	if !p.hasLocalIRK {
		p.log.Debug("no local IRK, private address generation deferred")
		return
	}
	p.rotate()
}

// StopPrivateAddressGeneration stops the rotation. The current addresses are
// dropped.
func (p *PrivateAddressController) StopPrivateAddressGeneration() {
	p.generating = false
	p.hasAddresses = false
	p.stopTimer()
}

// IsGenerating reports whether private addresses are currently available and
// rotated.
func (p *PrivateAddressController) IsGenerating() bool {
	return p.generating && p.hasAddresses
}

// SetTimeout sets the rotation period of private addresses. A running
// rotation is rearmed with the new period.
func (p *PrivateAddressController) SetTimeout(d time.Duration) error {
	if d < MinPrivateAddressTimeout {
		return fmt.Errorf("private address timeout %v below %v: %w", d, MinPrivateAddressTimeout, ErrInvalidParam)
	}
	p.timeout = d
	if p.timer != nil {
		p.stopTimer()
		p.armTimer()
	}
	return nil
}

// Timeout returns the rotation period of private addresses.
func (p *PrivateAddressController) Timeout() time.Duration {
	return p.timeout
}

// ResolvableAddress returns the current resolvable private address.
func (p *PrivateAddressController) ResolvableAddress() (MAC, bool) {
	return p.resolvable, p.hasAddresses
}

// NonResolvableAddress returns the current non-resolvable private address.
func (p *PrivateAddressController) NonResolvableAddress() (MAC, bool) {
	return p.nonResolvable, p.hasAddresses
}

func (p *PrivateAddressController) rotate() {
	rpa, err := generateResolvableAddress(p.localIRK, p.rand)
	if err == nil {
		var nrpa MAC
		nrpa, err = generateNonResolvableAddress(p.rand)
		if err == nil {
			p.resolvable = rpa
			p.nonResolvable = nrpa
			p.hasAddresses = true
		}
	}
	p.armTimer()
	if err != nil {
		p.log.WithError(err).Warn("private address generation failed, keeping previous addresses")
		return
	}

	p.log.WithFields(logrus.Fields{
		"resolvable":     rpa,
		"non_resolvable": p.nonResolvable,
	}).Debug("private addresses generated")

	if p.onAddressesGenerated != nil {
		p.onAddressesGenerated()
	}
	nrpa := p.nonResolvable
	p.queue.schedule(func() {
		p.handler.OnResolvablePrivateAddressGenerated(rpa)
		p.handler.OnNonResolvablePrivateAddressGenerated(nrpa)
	})
}

func (p *PrivateAddressController) armTimer() {
	p.timer = p.queue.afterFunc(p.ticker, p.timeout, func() {
		p.timer = nil
		if p.generating {
			p.rotate()
		}
	})
}

func (p *PrivateAddressController) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// AddDeviceToResolvingList adds the identity of a bonded peer and its IRK to
// the resolving list. The controller copy of the list is updated
// asynchronously; OnResolvingListActionComplete reports the outcome.
func (p *PrivateAddressController) AddDeviceToResolvingList(identity Address, irk IRK) error {
	if identity.Type == AddressTypeRandom && !identity.IsStaticRandom() {
		return fmt.Errorf("%v is not an identity address: %w", identity, ErrInvalidParam)
	}
	for _, e := range p.entries {
		if e.identity == identity {
			return fmt.Errorf("%v already in resolving list: %w", identity, ErrAlreadyPresent)
		}
	}
	if len(p.entries) >= p.maxEntries {
		return fmt.Errorf("resolving list holds %d entries: %w", p.maxEntries, ErrResourceExhausted)
	}
	p.entries = append(p.entries, resolvingListEntry{identity: identity, irk: irk})
	// A peer that could not be resolved before may match the new key.
	p.cache.removeUnresolved()
	p.submit(controlBlock{action: ResolvingListAdd, peer: identity, irk: irk})
	return nil
}

// RemoveDeviceFromResolvingList removes a peer from the resolving list.
func (p *PrivateAddressController) RemoveDeviceFromResolvingList(identity Address) error {
	for i, e := range p.entries {
		if e.identity != identity {
			continue
		}
		p.entries = append(p.entries[:i], p.entries[i+1:]...)
		p.cache.removeIdentity(identity)
		p.submit(controlBlock{action: ResolvingListRemove, peer: identity, irk: e.irk})
		return nil
	}
	return fmt.Errorf("%v not in resolving list: %w", identity, ErrNotFound)
}

// ClearResolvingList removes every peer from the resolving list.
func (p *PrivateAddressController) ClearResolvingList() {
	cleared := append([]resolvingListEntry(nil), p.entries...)
	p.entries = p.entries[:0]
	p.cache.reset()
	p.submit(controlBlock{action: ResolvingListClear, cleared: cleared})
}

// ResolvingListSize returns the number of peers in the resolving list.
func (p *PrivateAddressController) ResolvingListSize() int {
	return len(p.entries)
}

// EnableControllerAddressResolution switches address resolution in the
// controller on or off. OnResolvingListActionComplete reports the outcome.
func (p *PrivateAddressController) EnableControllerAddressResolution(enable bool) error {
	if !p.caps.AddressResolution {
		return fmt.Errorf("controller cannot resolve addresses: %w", ErrOperationNotPermitted)
	}
	p.submit(controlBlock{action: ResolvingListSetResolution, enable: enable})
	return nil
}

// IsControllerAddressResolutionEnabled reports whether the controller
// resolves peer addresses.
func (p *PrivateAddressController) IsControllerAddressResolutionEnabled() bool {
	return p.controllerResolution
}

// submit queues a control block. Only one block is processed by the
// controller at a time.
func (p *PrivateAddressController) submit(cb controlBlock) {
	if !p.caps.AddressResolution {
		// The resolving list only lives on the host.
		p.queue.schedule(func() {
			p.handler.OnResolvingListActionComplete(cb.action, StatusSuccess)
		})
		return
	}
	p.pending = append(p.pending, cb)
	p.processControlBlocks()
}

func (p *PrivateAddressController) processControlBlocks() {
	for p.inFlight == nil && len(p.pending) > 0 {
		cb := p.pending[0]
		p.pending[0] = controlBlock{}
		p.pending = p.pending[1:]

		var err error
		switch cb.action {
		case ResolvingListAdd:
			err = p.ctrl.AddDeviceToResolvingList(cb.peer, cb.irk, p.localIRK)
		case ResolvingListRemove:
			err = p.ctrl.RemoveDeviceFromResolvingList(cb.peer)
		case ResolvingListClear:
			err = p.ctrl.ClearResolvingList()
		case ResolvingListSetResolution:
			err = p.ctrl.SetAddressResolutionEnable(cb.enable)
		}
		if err != nil {
			p.log.WithError(err).WithField("action", cb.action).Warn("resolving list command rejected")
			p.rollback(cb)
			action := cb.action
			p.queue.schedule(func() {
				p.handler.OnResolvingListActionComplete(action, StatusUnspecifiedError)
			})
			continue
		}
		p.inFlight = &cb
	}
}

// rollback undoes the host side of a control block the controller did not
// apply, unless a later queued block changes the same entries.
func (p *PrivateAddressController) rollback(cb controlBlock) {
	for _, next := range p.pending {
		if next.action == ResolvingListClear || (cb.action != ResolvingListClear && next.peer == cb.peer &&
			(next.action == ResolvingListAdd || next.action == ResolvingListRemove)) {
			return
		}
	}
	switch cb.action {
	case ResolvingListAdd:
		for i, e := range p.entries {
			if e.identity == cb.peer {
				p.entries = append(p.entries[:i], p.entries[i+1:]...)
				p.cache.removeIdentity(cb.peer)
				break
			}
		}
	case ResolvingListRemove:
		p.restore([]resolvingListEntry{{identity: cb.peer, irk: cb.irk}})
	case ResolvingListClear:
		p.restore(cb.cleared)
	}
}

func (p *PrivateAddressController) restore(entries []resolvingListEntry) {
next:
	for _, entry := range entries {
		if len(p.entries) >= p.maxEntries {
			break
		}
		for _, e := range p.entries {
			if e.identity == entry.identity {
				continue next
			}
		}
		p.entries = append(p.entries, entry)
	}
	p.cache.removeUnresolved()
}

// handleCommandComplete completes the control block in flight.
func (p *PrivateAddressController) handleCommandComplete(ev CommandCompleteEvent) {
	cb := p.inFlight
	if cb == nil || cb.action.opcode() != ev.Opcode {
		p.log.WithField("opcode", ev.Opcode).Warn("unexpected resolving list completion")
		return
	}
	p.inFlight = nil

	log := p.log.WithFields(logrus.Fields{"action": cb.action, "status": ev.Status})
	if ev.Status != StatusSuccess {
		log.Warn("resolving list command failed")
		if cb.action == ResolvingListAdd {
			// The controller does not hold the entry.
			p.rollback(*cb)
		}
	} else {
		log.Debug("resolving list command complete")
	}

	if cb.action == ResolvingListSetResolution && ev.Status == StatusSuccess {
		p.controllerResolution = cb.enable
		if p.onResolutionEnabled != nil {
			p.onResolutionEnabled(cb.enable)
		}
	}
	p.handler.OnResolvingListActionComplete(cb.action, ev.Status)
	p.processControlBlocks()
}

// ResolveAddressInHostCache looks peer up in the cache of previous host
// resolutions.
func (p *PrivateAddressController) ResolveAddressInHostCache(peer MAC) (res AddressResolution, found bool) {
	return p.cache.lookup(peer)
}

// ResolveAddressOnHost resolves peer against the resolving list. The result
// is returned with complete set when it is known right away: peer is not a
// resolvable private address, or its outcome is cached. Otherwise the
// resolution is queued and reported later through
// OnAddressResolutionCompleted.
func (p *PrivateAddressController) ResolveAddressOnHost(peer MAC) (res AddressResolution, complete bool, err error) {
	if !peer.IsResolvablePrivate() {
		return AddressResolution{}, true, nil
	}
	if res, found := p.cache.lookup(peer); found {
		return res, true, nil
	}
	for _, queued := range p.hostQueue {
		if queued == peer {
			return AddressResolution{}, false, nil
		}
	}
	if len(p.hostQueue) >= p.hostQueueSize {
		return AddressResolution{}, false, fmt.Errorf("%d host resolutions queued: %w", len(p.hostQueue), ErrResourceExhausted)
	}
	p.hostQueue = append(p.hostQueue, peer)
	if len(p.hostQueue) == 1 {
		p.queue.schedule(p.processHostQueue)
	}
	return AddressResolution{}, false, nil
}

// processHostQueue resolves one queued address and reschedules itself while
// addresses remain, so that other events interleave.
func (p *PrivateAddressController) processHostQueue() {
	if len(p.hostQueue) == 0 {
		return
	}
	peer := p.hostQueue[0]
	// Shift in place, the backing array is allocated once.
	n := copy(p.hostQueue, p.hostQueue[1:])
	p.hostQueue = p.hostQueue[:n]

	res := p.resolve(peer)
	p.cache.add(peer, res)
	p.log.WithFields(logrus.Fields{
		"peer":     peer,
		"resolved": res.Resolved,
	}).Debug("address resolved on host")

	if p.onAddressResolved != nil {
		p.onAddressResolved(peer, res)
	}
	p.handler.OnAddressResolutionCompleted(peer, res.Resolved, res.Identity)

	if len(p.hostQueue) > 0 {
		p.queue.schedule(p.processHostQueue)
	}
}

func (p *PrivateAddressController) resolve(peer MAC) AddressResolution {
	for _, e := range p.entries {
		if e.irk.IsZero() {
			continue
		}
		if resolvePrivateAddress(e.irk, peer) {
			return AddressResolution{Identity: e.identity, Resolved: true}
		}
	}
	return AddressResolution{}
}

func (p *PrivateAddressController) shutdown() {
	p.stopTimer()
	p.generating = false
	p.hasAddresses = false
	p.pending = nil
	p.inFlight = nil
	p.hostQueue = p.hostQueue[:0]
}
