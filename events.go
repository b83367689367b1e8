package bluetooth

// EventHandler receives GAP events. Events are delivered from the event pump
// (Adapter.ProcessEvents or Adapter.Run), one at a time and in the order the
// controller raised them.
//
// Embed NoopEventHandler to implement only the methods you need:
//
//	type handler struct {
//		bluetooth.NoopEventHandler
//	}
//
//	func (handler) OnAdvertisingEnd(ev bluetooth.AdvertisingEndEvent) {
//		println("advertising ended:", ev.Handle)
//	}
type EventHandler interface {
	OnAdvertisingStart(ev AdvertisingStartEvent)
	OnAdvertisingEnd(ev AdvertisingEndEvent)
	OnScanRequestReceived(ev ScanRequestReceivedEvent)
	OnAdvertisingReport(ev AdvertisingReportEvent)
	OnScanTimeout(ev ScanTimeoutEvent)
	OnConnectionComplete(ev ConnectionCompleteEvent)
	OnPeriodicAdvertisingSyncEstablished(ev PeriodicSyncEstablishedEvent)
	OnPeriodicAdvertisingReport(ev PeriodicAdvertisingReportEvent)
	OnPeriodicAdvertisingSyncLoss(ev PeriodicSyncLostEvent)
	OnPhyUpdateComplete(ev PhyUpdateCompleteEvent)
	OnPrivacyEnabled()
}

// NoopEventHandler implements EventHandler and ignores every event.
type NoopEventHandler struct{}

func (NoopEventHandler) OnAdvertisingStart(AdvertisingStartEvent)                          {}
func (NoopEventHandler) OnAdvertisingEnd(AdvertisingEndEvent)                              {}
func (NoopEventHandler) OnScanRequestReceived(ScanRequestReceivedEvent)                    {}
func (NoopEventHandler) OnAdvertisingReport(AdvertisingReportEvent)                        {}
func (NoopEventHandler) OnScanTimeout(ScanTimeoutEvent)                                    {}
func (NoopEventHandler) OnConnectionComplete(ConnectionCompleteEvent)                      {}
func (NoopEventHandler) OnPeriodicAdvertisingSyncEstablished(PeriodicSyncEstablishedEvent) {}
func (NoopEventHandler) OnPeriodicAdvertisingReport(PeriodicAdvertisingReportEvent)        {}
func (NoopEventHandler) OnPeriodicAdvertisingSyncLoss(PeriodicSyncLostEvent)               {}
func (NoopEventHandler) OnPhyUpdateComplete(PhyUpdateCompleteEvent)                        {}
func (NoopEventHandler) OnPrivacyEnabled()                                                 {}

// AdvertisingStartEvent confirms (or denies, see Status) the start of an
// advertising set.
type AdvertisingStartEvent struct {
	Handle AdvertisingHandle
	Status Status
}

// AdvertisingEndReason tells why an advertising set stopped.
type AdvertisingEndReason uint8

const (
	// AdvertisingEndRequested follows a call to StopAdvertising.
	AdvertisingEndRequested AdvertisingEndReason = iota
	// AdvertisingEndTimeout follows the expiry of the max duration.
	AdvertisingEndTimeout
	// AdvertisingEndMaxEvents follows the last of the max events.
	AdvertisingEndMaxEvents
	// AdvertisingEndConnection follows a peer connecting to the set.
	AdvertisingEndConnection
	// AdvertisingEndError follows a controller error.
	AdvertisingEndError
)

func (r AdvertisingEndReason) String() string {
	switch r {
	case AdvertisingEndRequested:
		return "requested"
	case AdvertisingEndTimeout:
		return "timeout"
	case AdvertisingEndMaxEvents:
		return "max events"
	case AdvertisingEndConnection:
		return "connection"
	default:
		return "error"
	}
}

// AdvertisingEndEvent reports that an advertising set stopped.
type AdvertisingEndEvent struct {
	Handle           AdvertisingHandle
	Reason           AdvertisingEndReason
	Status           Status
	ConnectionHandle ConnectionHandle
	CompletedEvents  uint8
}

// Connected reports whether the set stopped because a peer connected.
func (ev AdvertisingEndEvent) Connected() bool {
	return ev.Reason == AdvertisingEndConnection
}

// ScanRequestReceivedEvent reports a scan request received by a set with
// scan request notification enabled.
type ScanRequestReceivedEvent struct {
	Handle  AdvertisingHandle
	Scanner Address
}

// AdvertisingReportType is a bit field describing a received advertising
// PDU.
type AdvertisingReportType uint8

const (
	ReportConnectable  AdvertisingReportType = 1 << iota // Connectable advertising
	ReportScannable                                      // Scannable advertising
	ReportDirected                                       // Directed advertising
	ReportScanResponse                                   // Scan response
	ReportLegacy                                         // Legacy advertising PDU
)

// AdvertisingReportEvent is an advertising packet received while scanning.
type AdvertisingReportEvent struct {
	Type AdvertisingReportType

	// Peer is the address found in the packet.
	Peer Address

	// PeerIdentity is the identity address of the peer when Peer could be
	// resolved, see PeerResolved.
	PeerIdentity Address
	PeerResolved bool

	PrimaryPHY       PHY
	SecondaryPHY     PHY
	SID              uint8
	TxPower          int8
	RSSI             int8
	PeriodicInterval uint16

	Data []byte
}

// Fields decodes the advertising payload of the report.
func (ev AdvertisingReportEvent) Fields() AdvertisementFields {
	return ParseAdvertisementFields(ev.Data)
}

// LocalName returns the local name advertised by the peer, if any.
func (ev AdvertisingReportEvent) LocalName() string {
	return ev.Fields().LocalName
}

// ScanTimeoutEvent reports that a scan stopped after its duration elapsed.
type ScanTimeoutEvent struct{}

// ConnectionCompleteEvent reports the outcome of a connection attempt, as
// initiator (Connect) or as advertiser.
type ConnectionCompleteEvent struct {
	Status Status
	Handle ConnectionHandle
	Role   ConnectionRole

	Peer         Address
	PeerIdentity Address
	PeerResolved bool

	// LocalResolvablePrivateAddress is the address used by the local device
	// when the controller generated it.
	LocalResolvablePrivateAddress MAC

	// AdvertisingHandle is the set the peer connected to, for the
	// peripheral role.
	AdvertisingHandle AdvertisingHandle

	Interval           ConnectionInterval
	Latency            uint16
	SupervisionTimeout uint16
}

// PeriodicSyncEstablishedEvent reports the outcome of CreateSync.
type PeriodicSyncEstablishedEvent struct {
	Status     Status
	SyncHandle uint16
	SID        uint8
	Advertiser Address
	PHY        PHY
	Interval   ConnectionInterval
}

// PeriodicAdvertisingReportEvent carries periodic advertising data of an
// established sync.
type PeriodicAdvertisingReportEvent struct {
	SyncHandle uint16
	TxPower    int8
	RSSI       int8
	// DataComplete is false when more data follows in another report.
	DataComplete bool
	Data         []byte
}

// PeriodicSyncLostEvent reports that an established sync was lost.
type PeriodicSyncLostEvent struct {
	SyncHandle uint16
}

// PhyUpdateCompleteEvent reports the PHYs of a connection after an update.
type PhyUpdateCompleteEvent struct {
	Status Status
	Handle ConnectionHandle
	TxPHY  PHY
	RxPHY  PHY
}

// PrivacyEventHandler receives events of the private address controller.
type PrivacyEventHandler interface {
	// OnResolvablePrivateAddressGenerated is called with every new
	// resolvable private address.
	OnResolvablePrivateAddressGenerated(addr MAC)

	// OnNonResolvablePrivateAddressGenerated is called with every new
	// non-resolvable private address.
	OnNonResolvablePrivateAddressGenerated(addr MAC)

	// OnAddressResolutionCompleted reports the outcome of a resolution that
	// could not complete synchronously.
	OnAddressResolutionCompleted(peer MAC, resolved bool, identity Address)

	// OnResolvingListActionComplete reports the outcome of a resolving list
	// operation on the controller.
	OnResolvingListActionComplete(action ResolvingListAction, status Status)
}

// NoopPrivacyEventHandler implements PrivacyEventHandler and ignores every
// event.
type NoopPrivacyEventHandler struct{}

func (NoopPrivacyEventHandler) OnResolvablePrivateAddressGenerated(MAC)                   {}
func (NoopPrivacyEventHandler) OnNonResolvablePrivateAddressGenerated(MAC)                {}
func (NoopPrivacyEventHandler) OnAddressResolutionCompleted(MAC, bool, Address)           {}
func (NoopPrivacyEventHandler) OnResolvingListActionComplete(ResolvingListAction, Status) {}
