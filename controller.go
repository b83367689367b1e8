package bluetooth

// Controller is the radio controller seen from the host: a set of
// handle-scoped commands and a stream of asynchronous events.
//
// A nil error from a command only means that the controller accepted it.
// Configuration commands (parameters, payloads, addresses) take effect when
// they return. Commands that switch the radio on or off, and resolving list
// commands, are confirmed later by a CommandCompleteEvent posted to the sink;
// connection and sync creation are confirmed by their own completion events.
type Controller interface {
	// Init starts the controller. Events must be posted to sink from then
	// on, from any goroutine.
	Init(sink ControllerEventSink) error

	// Shutdown stops the controller. No event is posted after it returns.
	Shutdown() error

	Capabilities() ControllerCapabilities

	SetAdvertisingParameters(handle AdvertisingHandle, params AdvertisingParameters) error
	SetAdvertisingData(handle AdvertisingHandle, data []byte) error
	SetScanResponseData(handle AdvertisingHandle, data []byte) error
	SetAdvertisingSetRandomAddress(handle AdvertisingHandle, addr MAC) error
	SetAdvertisingEnable(enable bool, sets []AdvertisingEnableEntry) error
	RemoveAdvertisingSet(handle AdvertisingHandle) error

	SetPeriodicAdvertisingParameters(handle AdvertisingHandle, params PeriodicAdvertisingParameters) error
	SetPeriodicAdvertisingData(handle AdvertisingHandle, data []byte) error
	SetPeriodicAdvertisingEnable(handle AdvertisingHandle, enable bool) error

	SetRandomAddress(addr MAC) error
	SetScanParameters(params ScanParameters) error
	SetScanEnable(enable, filterDuplicates bool) error

	CreateConnection(peer Address, params ConnectionParameters) error
	CancelConnection() error
	CreateSync(advertiser Address, sid uint8, skip uint16, timeout uint16) error
	CancelCreateSync() error
	SetPhy(conn ConnectionHandle, tx, rx PHY) error

	AddDeviceToResolvingList(peer Address, peerIRK, localIRK IRK) error
	RemoveDeviceFromResolvingList(peer Address) error
	ClearResolvingList() error
	SetAddressResolutionEnable(enable bool) error
}

// ControllerCapabilities describes the limits reported by a controller.
type ControllerCapabilities struct {
	// MaxAdvertisingSets is the number of sets the controller supports,
	// including the legacy set.
	MaxAdvertisingSets int

	// MaxAdvertisingDataLength is the largest payload of an inactive set.
	MaxAdvertisingDataLength int

	// MaxActiveSetAdvertisingDataLength is the largest payload that can be
	// loaded while the set is advertising.
	MaxActiveSetAdvertisingDataLength int

	ResolvingListSize int

	// AddressResolution is set when the controller resolves peer addresses
	// itself, using its resolving list.
	AddressResolution bool

	ExtendedAdvertising bool
	PeriodicAdvertising bool
}

// AdvertisingEnableEntry is one set of an advertising enable command.
type AdvertisingEnableEntry struct {
	Handle AdvertisingHandle

	// MaxEvents stops the set after this many advertising events. Zero means
	// no limit.
	MaxEvents uint8
}

// ControllerEventSink receives controller events. PostControllerEvent must
// not block; it returns an error when the event could not be queued.
type ControllerEventSink interface {
	PostControllerEvent(ev ControllerEvent) error
}

// ControllerEventSinkFunc adapts a function to ControllerEventSink.
type ControllerEventSinkFunc func(ev ControllerEvent) error

// PostControllerEvent calls f(ev).
func (f ControllerEventSinkFunc) PostControllerEvent(ev ControllerEvent) error {
	return f(ev)
}

// ControllerEvent is implemented by every event a controller can raise.
type ControllerEvent interface {
	controllerEvent()
}

// Opcode identifies the command confirmed by a CommandCompleteEvent.
type Opcode uint16

// Opcodes of the commands confirmed asynchronously, with their HCI values.
const (
	OpcodeSetAdvertisingEnable          Opcode = 0x2039
	OpcodeSetScanEnable                 Opcode = 0x2042
	OpcodeAddDeviceToResolvingList      Opcode = 0x2027
	OpcodeRemoveDeviceFromResolvingList Opcode = 0x2028
	OpcodeClearResolvingList            Opcode = 0x2029
	OpcodeSetAddressResolutionEnable    Opcode = 0x202D
)

func (op Opcode) String() string {
	switch op {
	case OpcodeSetAdvertisingEnable:
		return "LE Set Extended Advertising Enable"
	case OpcodeSetScanEnable:
		return "LE Set Extended Scan Enable"
	case OpcodeAddDeviceToResolvingList:
		return "LE Add Device To Resolving List"
	case OpcodeRemoveDeviceFromResolvingList:
		return "LE Remove Device From Resolving List"
	case OpcodeClearResolvingList:
		return "LE Clear Resolving List"
	case OpcodeSetAddressResolutionEnable:
		return "LE Set Address Resolution Enable"
	default:
		return "unknown command"
	}
}

// CommandCompleteEvent confirms a command accepted earlier. For advertising
// enable commands there is one event per set, identified by Handle, and
// Enable tells whether the set was switched on or off.
type CommandCompleteEvent struct {
	Opcode Opcode
	Status Status
	Handle AdvertisingHandle
	Enable bool
}

// AdvertisingSetTerminatedEvent reports that the controller stopped a set on
// its own: because a peer connected (ConnectionHandle is valid), because the
// set reached its maximum number of events, or because of an error.
type AdvertisingSetTerminatedEvent struct {
	Status           Status
	Handle           AdvertisingHandle
	ConnectionHandle ConnectionHandle
	CompletedEvents  uint8
}

func (CommandCompleteEvent) controllerEvent()           {}
func (AdvertisingSetTerminatedEvent) controllerEvent()  {}
func (AdvertisingReportEvent) controllerEvent()         {}
func (ConnectionCompleteEvent) controllerEvent()        {}
func (ScanRequestReceivedEvent) controllerEvent()       {}
func (PeriodicSyncEstablishedEvent) controllerEvent()   {}
func (PeriodicAdvertisingReportEvent) controllerEvent() {}
func (PeriodicSyncLostEvent) controllerEvent()          {}
func (PhyUpdateCompleteEvent) controllerEvent()         {}

// IRK is an identity resolving key, most significant byte first.
type IRK [16]byte

// IsZero reports whether all bytes of the key are zero.
func (k IRK) IsZero() bool {
	return k == IRK{}
}

// ConnectionHandle identifies a connection.
type ConnectionHandle uint16

// InvalidConnectionHandle is used when no connection is involved.
const InvalidConnectionHandle ConnectionHandle = 0xFFFF

// ConnectionRole is the role of the local device in a connection.
type ConnectionRole uint8

const (
	RoleCentral    ConnectionRole = 0x00
	RolePeripheral ConnectionRole = 0x01
)
