package bluetooth

// AdvertisingDataType is the type byte of an AD structure.
type AdvertisingDataType uint8

// Advertising data types from the Bluetooth Assigned Numbers document.
const (
	AdvTypeFlags                        AdvertisingDataType = 0x01 // Flags
	AdvTypeIncompleteList16BitUUIDs     AdvertisingDataType = 0x02 // Incomplete List of 16-bit Service Class UUIDs
	AdvTypeCompleteList16BitUUIDs       AdvertisingDataType = 0x03 // Complete List of 16-bit Service Class UUIDs
	AdvTypeIncompleteList32BitUUIDs     AdvertisingDataType = 0x04 // Incomplete List of 32-bit Service Class UUIDs
	AdvTypeCompleteList32BitUUIDs       AdvertisingDataType = 0x05 // Complete List of 32-bit Service Class UUIDs
	AdvTypeIncompleteList128BitUUIDs    AdvertisingDataType = 0x06 // Incomplete List of 128-bit Service Class UUIDs
	AdvTypeCompleteList128BitUUIDs      AdvertisingDataType = 0x07 // Complete List of 128-bit Service Class UUIDs
	AdvTypeShortenedLocalName           AdvertisingDataType = 0x08 // Shortened Local Name
	AdvTypeCompleteLocalName            AdvertisingDataType = 0x09 // Complete Local Name
	AdvTypeTxPowerLevel                 AdvertisingDataType = 0x0A // Tx Power Level
	AdvTypeClassOfDevice                AdvertisingDataType = 0x0D // Class of Device
	AdvTypeSlaveConnectionIntervalRange AdvertisingDataType = 0x12 // Peripheral Connection Interval Range
	AdvTypeServiceSolicitation16Bit     AdvertisingDataType = 0x14 // List of 16-bit Service Solicitation UUIDs
	AdvTypeServiceSolicitation128Bit    AdvertisingDataType = 0x15 // List of 128-bit Service Solicitation UUIDs
	AdvTypeServiceData16Bit             AdvertisingDataType = 0x16 // Service Data - 16-bit UUID
	AdvTypePublicTargetAddress          AdvertisingDataType = 0x17 // Public Target Address
	AdvTypeRandomTargetAddress          AdvertisingDataType = 0x18 // Random Target Address
	AdvTypeAppearance                   AdvertisingDataType = 0x19 // Appearance
	AdvTypeAdvertisingInterval          AdvertisingDataType = 0x1A // Advertising Interval
	AdvTypeLEDeviceAddress              AdvertisingDataType = 0x1B // LE Bluetooth Device Address
	AdvTypeLERole                       AdvertisingDataType = 0x1C // LE Role
	AdvTypeServiceSolicitation32Bit     AdvertisingDataType = 0x1F // List of 32-bit Service Solicitation UUIDs
	AdvTypeServiceData32Bit             AdvertisingDataType = 0x20 // Service Data - 32-bit UUID
	AdvTypeServiceData128Bit            AdvertisingDataType = 0x21 // Service Data - 128-bit UUID
	AdvTypeManufacturerSpecificData     AdvertisingDataType = 0xFF // Manufacturer Specific Data
)

// isServiceData reports whether fields of this type start with a service
// UUID that identifies them.
func (t AdvertisingDataType) isServiceData() bool {
	return t == AdvTypeServiceData16Bit || t == AdvTypeServiceData32Bit || t == AdvTypeServiceData128Bit
}

// AdvertisingFlags is the value of the Flags AD structure.
type AdvertisingFlags uint8

// flag bits
const (
	FlagLELimitedDiscoverable  AdvertisingFlags = 1 << iota // LE Limited Discoverable Mode
	FlagLEGeneralDiscoverable                               // LE General Discoverable Mode
	FlagBREDRNotSupported                                   // BR/EDR Not Supported
	FlagSimultaneousController                              // Simultaneous LE and BR/EDR (Controller)
	FlagSimultaneousHost                                    // Simultaneous LE and BR/EDR (Host)

	// DefaultAdvertisingFlags is used by SetFlags when no flag is given.
	DefaultAdvertisingFlags = FlagLEGeneralDiscoverable | FlagBREDRNotSupported
)

// Some sizes defined by the Core specification.
const (
	// MaxAdvertisingFieldValueLength is the largest value an AD structure can
	// hold: the length byte also counts the type byte.
	MaxAdvertisingFieldValueLength = 254

	// LegacyAdvertisingDataMaxLength is the payload limit of legacy
	// advertising PDUs (and of the classic EIR packet).
	LegacyAdvertisingDataMaxLength = 31

	// fieldHeaderSize is the length byte plus the type byte.
	fieldHeaderSize = 2
)
