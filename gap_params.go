package bluetooth

import (
	"fmt"
	"time"
)

// Duration is the unit of time used in BLE, in 0.625ms units. This unit of
// time is used throughout the BLE stack for advertising and scan intervals.
type Duration uint32

// NewDuration returns a new Duration, in units of 0.625ms. It is used both
// for advertisement intervals and for scan interval/window durations.
func NewDuration(interval time.Duration) Duration {
	// Convert an interval to units of 0.625ms.
	return Duration(uint64(interval / (625 * time.Microsecond)))
}

// AsTimeDuration returns a time.Duration value for this Duration.
func (d Duration) AsTimeDuration() time.Duration {
	return time.Duration(d) * 625 * time.Microsecond
}

// ConnectionInterval is a connection interval in units of 1.25ms.
type ConnectionInterval uint16

// ConnectionIntervalUnspecified may be used as either bound of a preferred
// connection interval range.
const ConnectionIntervalUnspecified ConnectionInterval = 0xFFFF

// NewConnectionInterval converts a time.Duration to a ConnectionInterval.
func NewConnectionInterval(d time.Duration) ConnectionInterval {
	return ConnectionInterval(d / (1250 * time.Microsecond))
}

// Appearance is the external appearance of the device, from the Assigned
// Numbers document.
type Appearance uint16

const (
	AppearanceUnknown         Appearance = 0
	AppearanceGenericPhone    Appearance = 64
	AppearanceGenericComputer Appearance = 128
	AppearanceGenericWatch    Appearance = 192
	AppearanceGenericTag      Appearance = 512
	AppearanceHeartRateSensor Appearance = 832
	AppearanceGenericSensor   Appearance = 1344
)

// PHY is a physical layer of the LE radio.
type PHY uint8

const (
	PHY1M    PHY = 0x01
	PHY2M    PHY = 0x02
	PHYCoded PHY = 0x03
)

func (p PHY) String() string {
	switch p {
	case PHY1M:
		return "1M"
	case PHY2M:
		return "2M"
	case PHYCoded:
		return "coded"
	default:
		return fmt.Sprintf("PHY(%d)", uint8(p))
	}
}

// AdvertisingHandle identifies an advertising set.
type AdvertisingHandle uint8

const (
	// LegacyAdvertisingHandle is the set that always exists. It cannot be
	// destroyed.
	LegacyAdvertisingHandle AdvertisingHandle = 0x00

	// InvalidAdvertisingHandle is returned along with an error.
	InvalidAdvertisingHandle AdvertisingHandle = 0xFF
)

// AdvertisingType is the kind of advertising PDU sent by a set.
type AdvertisingType uint8

const (
	AdvertisingConnectableUndirected AdvertisingType = iota
	AdvertisingConnectableDirected
	AdvertisingScannableUndirected
	AdvertisingNonConnectableUndirected
	AdvertisingConnectableDirectedLowDuty
	// AdvertisingConnectableNonScannableUndirected is only available with
	// extended advertising PDUs.
	AdvertisingConnectableNonScannableUndirected
)

// IsConnectable reports whether peers may connect to a set advertising with
// this type.
func (t AdvertisingType) IsConnectable() bool {
	switch t {
	case AdvertisingConnectableUndirected, AdvertisingConnectableDirected,
		AdvertisingConnectableDirectedLowDuty, AdvertisingConnectableNonScannableUndirected:
		return true
	}
	return false
}

// IsScannable reports whether a set advertising with this type answers scan
// requests.
func (t AdvertisingType) IsScannable() bool {
	return t == AdvertisingConnectableUndirected || t == AdvertisingScannableUndirected
}

// OwnAddressType selects the address used by the local device when
// advertising, scanning or initiating.
type OwnAddressType uint8

const (
	OwnAddressPublic OwnAddressType = iota
	// OwnAddressRandom uses the random address of the set. When privacy is
	// enabled this is the current private address.
	OwnAddressRandom
	OwnAddressResolvablePublicFallback
	OwnAddressResolvableRandomFallback
)

// usesPrivateAddress reports whether the host must program a private address
// for this own address type.
func (t OwnAddressType) usesPrivateAddress() bool {
	return t != OwnAddressPublic
}

// AdvertisingParameters configures an advertising set.
type AdvertisingParameters struct {
	Type AdvertisingType

	// Advertising interval bounds.
	MinInterval Duration
	MaxInterval Duration

	// ChannelMap selects channels 37, 38 and 39 (bits 0, 1 and 2).
	ChannelMap uint8

	OwnAddressType OwnAddressType

	// PeerAddress is the target of directed advertising.
	PeerAddress Address

	FilterPolicy uint8

	// TxPower is the requested transmit power in dBm. 127 means no
	// preference.
	TxPower int8

	PrimaryPHY   PHY
	SecondaryPHY PHY

	// SID is the advertising set identifier sent in extended PDUs.
	SID uint8

	// UseLegacyPDU restricts the set to legacy advertising PDUs. The legacy
	// set always uses them.
	UseLegacyPDU bool

	Anonymous               bool
	IncludeTxPower          bool
	ScanRequestNotification bool
}

// DefaultAdvertisingParameters returns connectable undirected legacy
// advertising on all channels.
func DefaultAdvertisingParameters() AdvertisingParameters {
	return AdvertisingParameters{
		Type:         AdvertisingConnectableUndirected,
		MinInterval:  NewDuration(640 * time.Millisecond),
		MaxInterval:  NewDuration(1280 * time.Millisecond),
		ChannelMap:   0x07,
		TxPower:      127,
		PrimaryPHY:   PHY1M,
		SecondaryPHY: PHY1M,
		UseLegacyPDU: true,
	}
}

// Validate checks the parameters for consistency.
func (p AdvertisingParameters) Validate() error {
	switch {
	case p.MinInterval > p.MaxInterval:
		return fmt.Errorf("min interval above max interval: %w", ErrInvalidParam)
	case p.MinInterval < 0x20 || p.MaxInterval > 0xFFFFFF:
		return fmt.Errorf("advertising interval out of range: %w", ErrInvalidParam)
	case p.ChannelMap == 0 || p.ChannelMap > 0x07:
		return fmt.Errorf("invalid channel map 0x%02X: %w", p.ChannelMap, ErrInvalidParam)
	case p.Type > AdvertisingConnectableNonScannableUndirected:
		return fmt.Errorf("unknown advertising type %d: %w", p.Type, ErrInvalidParam)
	}
	if p.UseLegacyPDU {
		switch {
		case p.Anonymous:
			return fmt.Errorf("anonymous advertising needs extended PDUs: %w", ErrInvalidParam)
		case p.PrimaryPHY != PHY1M:
			return fmt.Errorf("legacy advertising on %s PHY: %w", p.PrimaryPHY, ErrInvalidParam)
		case p.Type == AdvertisingConnectableNonScannableUndirected:
			return fmt.Errorf("advertising type needs extended PDUs: %w", ErrInvalidParam)
		}
	} else {
		// Extended PDUs cannot be both connectable and scannable.
		if p.Type.IsConnectable() && p.Type.IsScannable() {
			return fmt.Errorf("extended advertising cannot be connectable and scannable: %w", ErrInvalidParam)
		}
		if p.PrimaryPHY == PHY2M {
			return fmt.Errorf("2M PHY cannot be a primary PHY: %w", ErrInvalidParam)
		}
	}
	return nil
}

// PeriodicAdvertisingParameters configures periodic advertising of a set.
type PeriodicAdvertisingParameters struct {
	// Interval bounds, in 1.25ms units.
	MinInterval ConnectionInterval
	MaxInterval ConnectionInterval

	IncludeTxPower bool
}

// Validate checks the parameters for consistency.
func (p PeriodicAdvertisingParameters) Validate() error {
	if p.MinInterval < 0x0006 || p.MinInterval > p.MaxInterval {
		return fmt.Errorf("periodic advertising interval out of range: %w", ErrInvalidParam)
	}
	return nil
}

// ScanParameters configures scanning.
type ScanParameters struct {
	OwnAddressType OwnAddressType
	FilterPolicy   uint8
	PHY            PHY
	Interval       Duration
	Window         Duration
	ActiveScanning bool
}

// DefaultScanParameters returns passive scanning on the 1M PHY, every 62.5ms
// for 30ms.
func DefaultScanParameters() ScanParameters {
	return ScanParameters{
		PHY:      PHY1M,
		Interval: 0x0064,
		Window:   0x0030,
	}
}

// Validate checks the parameters for consistency.
func (p ScanParameters) Validate() error {
	if p.Window == 0 || p.Window > p.Interval || p.Interval > 0xFFFF {
		return fmt.Errorf("scan window/interval out of range: %w", ErrInvalidParam)
	}
	return nil
}

// ConnectionParameters configures connection establishment.
type ConnectionParameters struct {
	ScanInterval Duration
	ScanWindow   Duration

	OwnAddressType OwnAddressType
	FilterPolicy   uint8

	MinInterval ConnectionInterval
	MaxInterval ConnectionInterval
	Latency     uint16

	// SupervisionTimeout is in units of 10ms.
	SupervisionTimeout uint16
}

// DefaultConnectionParameters returns parameters suitable for most peers.
func DefaultConnectionParameters() ConnectionParameters {
	return ConnectionParameters{
		ScanInterval:       0x0060,
		ScanWindow:         0x0030,
		MinInterval:        0x0006,
		MaxInterval:        0x000C,
		SupervisionTimeout: 0x00C8,
	}
}

// Validate checks the parameters for consistency.
func (p ConnectionParameters) Validate() error {
	switch {
	case p.ScanWindow == 0 || p.ScanWindow > p.ScanInterval:
		return fmt.Errorf("scan window/interval out of range: %w", ErrInvalidParam)
	case p.MinInterval < 0x0006 || p.MinInterval > p.MaxInterval || p.MaxInterval > 0x0C80:
		return fmt.Errorf("connection interval out of range: %w", ErrInvalidParam)
	case p.SupervisionTimeout < 0x000A || p.SupervisionTimeout > 0x0C80:
		return fmt.Errorf("supervision timeout out of range: %w", ErrInvalidParam)
	}
	return nil
}
