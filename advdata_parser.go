package bluetooth

import "encoding/binary"

// AdvertisingDataElement is a single AD structure of a payload. Value aliases
// the parsed buffer.
type AdvertisingDataElement struct {
	Type  AdvertisingDataType
	Value []byte
}

// AdvertisingDataParser iterates over the AD structures of an advertising
// payload. Iteration stops at the end of the buffer, at a zero length byte
// (padding) or at a field that would run past the end of the buffer.
//
//	p := NewAdvertisingDataParser(payload)
//	for p.HasNext() {
//		e := p.Next()
//		...
//	}
type AdvertisingDataParser struct {
	data []byte
	pos  int
}

// NewAdvertisingDataParser returns a parser positioned at the start of data.
func NewAdvertisingDataParser(data []byte) *AdvertisingDataParser {
	return &AdvertisingDataParser{data: data}
}

// HasNext reports whether another well-formed element follows.
func (p *AdvertisingDataParser) HasNext() bool {
	if p.pos >= len(p.data) {
		return false
	}
	l := int(p.data[p.pos])
	if l == 0 {
		return false
	}
	return p.pos+1+l <= len(p.data)
}

// Next returns the element at the cursor and advances past it. It must only
// be called after HasNext returned true.
func (p *AdvertisingDataParser) Next() AdvertisingDataElement {
	l := int(p.data[p.pos])
	e := AdvertisingDataElement{
		Type:  AdvertisingDataType(p.data[p.pos+1]),
		Value: p.data[p.pos+fieldHeaderSize : p.pos+1+l],
	}
	p.pos += 1 + l
	return e
}

// Reset rewinds the parser to the start of the payload.
func (p *AdvertisingDataParser) Reset() {
	p.pos = 0
}

// ManufacturerDataElement is the content of a manufacturer specific data
// field.
type ManufacturerDataElement struct {
	CompanyID uint16
	Data      []byte
}

// ServiceDataElement is the content of a service data field.
type ServiceDataElement struct {
	UUID UUID
	Data []byte
}

// AdvertisementFields contains the decoded fields of an advertising payload
// that applications usually care about.
type AdvertisementFields struct {
	// LocalName is the complete or shortened local name.
	LocalName string

	// ShortenedName is set when LocalName came from a shortened local name.
	ShortenedName bool

	Flags    AdvertisingFlags
	HasFlags bool

	TxPowerLevel int8
	HasTxPower   bool

	Appearance    Appearance
	HasAppearance bool

	ServiceUUIDs          []UUID
	SolicitedServiceUUIDs []UUID
	ManufacturerData      []ManufacturerDataElement
	ServiceData           []ServiceDataElement
}

// ParseAdvertisementFields decodes the fields of an advertising payload.
// Unknown fields and fields with malformed values are skipped. Byte slices in
// the result are copies.
func ParseAdvertisementFields(payload []byte) AdvertisementFields {
	var f AdvertisementFields
	p := NewAdvertisingDataParser(payload)
	for p.HasNext() {
		e := p.Next()
		d := e.Value
		switch e.Type {
		case AdvTypeFlags:
			if len(d) >= 1 {
				f.Flags = AdvertisingFlags(d[0])
				f.HasFlags = true
			}
		case AdvTypeIncompleteList16BitUUIDs, AdvTypeCompleteList16BitUUIDs:
			f.ServiceUUIDs = appendUUIDList(f.ServiceUUIDs, d, 2)
		case AdvTypeIncompleteList32BitUUIDs, AdvTypeCompleteList32BitUUIDs:
			f.ServiceUUIDs = appendUUIDList(f.ServiceUUIDs, d, 4)
		case AdvTypeIncompleteList128BitUUIDs, AdvTypeCompleteList128BitUUIDs:
			f.ServiceUUIDs = appendUUIDList(f.ServiceUUIDs, d, 16)
		case AdvTypeServiceSolicitation16Bit:
			f.SolicitedServiceUUIDs = appendUUIDList(f.SolicitedServiceUUIDs, d, 2)
		case AdvTypeServiceSolicitation32Bit:
			f.SolicitedServiceUUIDs = appendUUIDList(f.SolicitedServiceUUIDs, d, 4)
		case AdvTypeServiceSolicitation128Bit:
			f.SolicitedServiceUUIDs = appendUUIDList(f.SolicitedServiceUUIDs, d, 16)
		case AdvTypeShortenedLocalName:
			// A complete name wins over a shortened one.
			if f.LocalName == "" || f.ShortenedName {
				f.LocalName = string(d)
				f.ShortenedName = true
			}
		case AdvTypeCompleteLocalName:
			f.LocalName = string(d)
			f.ShortenedName = false
		case AdvTypeTxPowerLevel:
			if len(d) >= 1 {
				f.TxPowerLevel = int8(d[0])
				f.HasTxPower = true
			}
		case AdvTypeAppearance:
			if len(d) >= 2 {
				f.Appearance = Appearance(binary.LittleEndian.Uint16(d))
				f.HasAppearance = true
			}
		case AdvTypeServiceData16Bit:
			if len(d) >= 2 {
				f.ServiceData = append(f.ServiceData, ServiceDataElement{
					UUID: New16BitUUID(binary.LittleEndian.Uint16(d)),
					Data: append([]byte(nil), d[2:]...),
				})
			}
		case AdvTypeServiceData32Bit:
			if len(d) >= 4 {
				f.ServiceData = append(f.ServiceData, ServiceDataElement{
					UUID: new32BitUUID(binary.LittleEndian.Uint32(d)),
					Data: append([]byte(nil), d[4:]...),
				})
			}
		case AdvTypeServiceData128Bit:
			if len(d) >= 16 {
				f.ServiceData = append(f.ServiceData, ServiceDataElement{
					UUID: uuidFromLittleEndian(d),
					Data: append([]byte(nil), d[16:]...),
				})
			}
		case AdvTypeManufacturerSpecificData:
			if len(d) >= 2 {
				f.ManufacturerData = append(f.ManufacturerData, ManufacturerDataElement{
					CompanyID: binary.LittleEndian.Uint16(d),
					Data:      append([]byte(nil), d[2:]...),
				})
			}
		}
	}
	return f
}

func appendUUIDList(list []UUID, d []byte, width int) []UUID {
	if len(d)%width != 0 {
		return list
	}
	for ; len(d) > 0; d = d[width:] {
		switch width {
		case 2:
			list = append(list, New16BitUUID(binary.LittleEndian.Uint16(d)))
		case 4:
			list = append(list, new32BitUUID(binary.LittleEndian.Uint32(d)))
		default:
			list = append(list, uuidFromLittleEndian(d))
		}
	}
	return list
}

func new32BitUUID(v uint32) UUID {
	uuid := New16BitUUID(0)
	uuid[3] = v
	return uuid
}
