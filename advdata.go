package bluetooth

import (
	"encoding/binary"
)

// AdvertisingDataBuilder builds or edits an advertising (or scan response)
// payload in a caller supplied buffer. The payload is a sequence of AD
// structures: [length][type][value], where length counts the type byte and
// the value. The builder keeps at most one field of each type, except for
// service data which is keyed by service UUID.
//
// Every operation works in place and either succeeds completely or leaves the
// payload untouched.
type AdvertisingDataBuilder struct {
	buf []byte
	n   int
}

// NewAdvertisingDataBuilder returns a builder writing into buf. The capacity
// of the payload is len(buf). The buffer is cleared.
func NewAdvertisingDataBuilder(buf []byte) *AdvertisingDataBuilder {
	b := &AdvertisingDataBuilder{buf: buf}
	b.Clear()
	return b
}

// AdvertisingData returns the part of the buffer that holds the payload.
func (b *AdvertisingDataBuilder) AdvertisingData() []byte {
	return b.buf[:b.n]
}

// Len returns the number of payload bytes in use.
func (b *AdvertisingDataBuilder) Len() int {
	return b.n
}

// Cap returns the payload capacity.
func (b *AdvertisingDataBuilder) Cap() int {
	return len(b.buf)
}

// Clear zeroes the buffer and empties the payload.
func (b *AdvertisingDataBuilder) Clear() {
	clear(b.buf)
	b.n = 0
}

// AddData adds a new field. It fails with ErrAlreadyPresent if a field of
// this type exists and with ErrBufferOverflow if the field does not fit.
func (b *AdvertisingDataBuilder) AddData(typ AdvertisingDataType, value []byte) error {
	if len(value) > MaxAdvertisingFieldValueLength {
		return ErrInvalidParam
	}
	if _, ok := b.findField(typ); ok {
		return ErrAlreadyPresent
	}
	return b.addField(typ, value)
}

// ReplaceData replaces the value of an existing field. A value of the same
// length is overwritten in place, otherwise the field moves to the end of the
// payload.
func (b *AdvertisingDataBuilder) ReplaceData(typ AdvertisingDataType, value []byte) error {
	if len(value) > MaxAdvertisingFieldValueLength {
		return ErrInvalidParam
	}
	off, ok := b.findField(typ)
	if !ok {
		return ErrNotFound
	}
	return b.replaceField(off, typ, value)
}

// AppendData appends value to the value of an existing field.
func (b *AdvertisingDataBuilder) AppendData(typ AdvertisingDataType, value []byte) error {
	off, ok := b.findField(typ)
	if !ok {
		return ErrNotFound
	}
	return b.appendToField(off, value)
}

// RemoveData removes an existing field.
func (b *AdvertisingDataBuilder) RemoveData(typ AdvertisingDataType) error {
	off, ok := b.findField(typ)
	if !ok {
		return ErrNotFound
	}
	b.removeField(off)
	return nil
}

// AddOrReplaceData adds the field, or replaces its value if it exists.
func (b *AdvertisingDataBuilder) AddOrReplaceData(typ AdvertisingDataType, value []byte) error {
	if _, ok := b.findField(typ); ok {
		return b.ReplaceData(typ, value)
	}
	return b.AddData(typ, value)
}

// AddOrAppendData adds the field, or appends to its value if it exists.
func (b *AdvertisingDataBuilder) AddOrAppendData(typ AdvertisingDataType, value []byte) error {
	if _, ok := b.findField(typ); ok {
		return b.AppendData(typ, value)
	}
	return b.AddData(typ, value)
}

// GetData returns the value of the field of the given type. The returned
// slice aliases the builder's buffer.
func (b *AdvertisingDataBuilder) GetData(typ AdvertisingDataType) ([]byte, error) {
	off, ok := b.findField(typ)
	if !ok {
		return nil, ErrNotFound
	}
	return b.fieldValue(off), nil
}

// SetFlags sets the Flags field. Without arguments the flags are LE General
// Discoverable and BR/EDR Not Supported.
func (b *AdvertisingDataBuilder) SetFlags(flags ...AdvertisingFlags) error {
	var f AdvertisingFlags
	for _, flag := range flags {
		f |= flag
	}
	if len(flags) == 0 {
		f = DefaultAdvertisingFlags
	}
	return b.AddOrReplaceData(AdvTypeFlags, []byte{byte(f)})
}

// RemoveFlags removes the Flags field.
func (b *AdvertisingDataBuilder) RemoveFlags() error {
	return b.RemoveData(AdvTypeFlags)
}

// SetTxPowerAdvertised sets the advertised transmit power, in dBm.
func (b *AdvertisingDataBuilder) SetTxPowerAdvertised(dbm int8) error {
	return b.AddOrReplaceData(AdvTypeTxPowerLevel, []byte{byte(dbm)})
}

// RemoveTxPowerAdvertised removes the Tx Power Level field.
func (b *AdvertisingDataBuilder) RemoveTxPowerAdvertised() error {
	return b.RemoveData(AdvTypeTxPowerLevel)
}

// SetName sets the local name, either as the complete or the shortened local
// name. A name of the other kind is removed.
func (b *AdvertisingDataBuilder) SetName(name string, complete bool) error {
	if len(name) > MaxAdvertisingFieldValueLength {
		return ErrInvalidParam
	}
	typ, other := AdvTypeShortenedLocalName, AdvTypeCompleteLocalName
	if complete {
		typ, other = other, typ
	}
	otherOff, hasOther := b.findField(other)
	off, ok := b.findField(typ)
	if ok && !hasOther && b.fieldValueLength(off) == len(name) {
		copy(b.buf[off+fieldHeaderSize:], name)
		return nil
	}

	freed := 0
	if hasOther {
		freed += b.fieldSize(otherOff)
	}
	if ok {
		freed += b.fieldSize(off)
	}
	if b.n-freed+fieldHeaderSize+len(name) > len(b.buf) {
		return ErrBufferOverflow
	}
	for _, t := range [...]AdvertisingDataType{other, typ} {
		if off, ok := b.findField(t); ok {
			b.removeField(off)
		}
	}
	b.buf[b.n] = byte(len(name) + 1)
	b.buf[b.n+1] = byte(typ)
	copy(b.buf[b.n+fieldHeaderSize:], name)
	b.n += fieldHeaderSize + len(name)
	return nil
}

// RemoveName removes the local name, complete or shortened.
func (b *AdvertisingDataBuilder) RemoveName() error {
	err := b.RemoveData(AdvTypeCompleteLocalName)
	if err == ErrNotFound {
		return b.RemoveData(AdvTypeShortenedLocalName)
	}
	return err
}

// SetManufacturerSpecificData sets the manufacturer specific data. The first
// two bytes must be the company identifier.
func (b *AdvertisingDataBuilder) SetManufacturerSpecificData(data []byte) error {
	if len(data) < 2 {
		return ErrInvalidParam
	}
	return b.AddOrReplaceData(AdvTypeManufacturerSpecificData, data)
}

// RemoveManufacturerSpecificData removes the manufacturer specific data.
func (b *AdvertisingDataBuilder) RemoveManufacturerSpecificData() error {
	return b.RemoveData(AdvTypeManufacturerSpecificData)
}

// SetAdvertisingInterval advertises the advertising interval. The field only
// holds 16 bits.
func (b *AdvertisingDataBuilder) SetAdvertisingInterval(interval Duration) error {
	if interval > 0xFFFF {
		return ErrInvalidParam
	}
	var v [2]byte
	binary.LittleEndian.PutUint16(v[:], uint16(interval))
	return b.AddOrReplaceData(AdvTypeAdvertisingInterval, v[:])
}

// RemoveAdvertisingInterval removes the advertising interval field.
func (b *AdvertisingDataBuilder) RemoveAdvertisingInterval() error {
	return b.RemoveData(AdvTypeAdvertisingInterval)
}

// SetConnectionIntervalPreference advertises the preferred connection
// interval range, in 1.25ms units. ConnectionIntervalUnspecified may be used
// for either bound.
func (b *AdvertisingDataBuilder) SetConnectionIntervalPreference(min, max ConnectionInterval) error {
	if min != ConnectionIntervalUnspecified && max != ConnectionIntervalUnspecified && min > max {
		return ErrInvalidParam
	}
	var v [4]byte
	binary.LittleEndian.PutUint16(v[0:2], uint16(min))
	binary.LittleEndian.PutUint16(v[2:4], uint16(max))
	return b.AddOrReplaceData(AdvTypeSlaveConnectionIntervalRange, v[:])
}

// RemoveConnectionIntervalPreference removes the connection interval range.
func (b *AdvertisingDataBuilder) RemoveConnectionIntervalPreference() error {
	return b.RemoveData(AdvTypeSlaveConnectionIntervalRange)
}

// SetAppearance sets the appearance field.
func (b *AdvertisingDataBuilder) SetAppearance(appearance Appearance) error {
	var v [2]byte
	binary.LittleEndian.PutUint16(v[:], uint16(appearance))
	return b.AddOrReplaceData(AdvTypeAppearance, v[:])
}

// RemoveAppearance removes the appearance field.
func (b *AdvertisingDataBuilder) RemoveAppearance() error {
	return b.RemoveData(AdvTypeAppearance)
}

// SetLocalServiceList advertises the services offered by the device. When
// complete is false the incomplete list types are used. Lists of the other
// kind are removed.
func (b *AdvertisingDataBuilder) SetLocalServiceList(uuids []UUID, complete bool) error {
	short, long := AdvTypeIncompleteList16BitUUIDs, AdvTypeIncompleteList128BitUUIDs
	otherShort, otherLong := AdvTypeCompleteList16BitUUIDs, AdvTypeCompleteList128BitUUIDs
	if complete {
		short, long, otherShort, otherLong = otherShort, otherLong, short, long
	}
	return b.setUUIDData(uuids, short, long, otherShort, otherLong)
}

// RemoveLocalServiceList removes every service list field.
func (b *AdvertisingDataBuilder) RemoveLocalServiceList() error {
	found := false
	for _, typ := range []AdvertisingDataType{
		AdvTypeIncompleteList16BitUUIDs, AdvTypeCompleteList16BitUUIDs,
		AdvTypeIncompleteList128BitUUIDs, AdvTypeCompleteList128BitUUIDs,
	} {
		if b.RemoveData(typ) == nil {
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// SetRequestedServiceList advertises the services the device wants a peer
// to offer (service solicitation).
func (b *AdvertisingDataBuilder) SetRequestedServiceList(uuids []UUID) error {
	return b.setUUIDData(uuids, AdvTypeServiceSolicitation16Bit, AdvTypeServiceSolicitation128Bit)
}

// RemoveRequestedServiceList removes the service solicitation fields.
func (b *AdvertisingDataBuilder) RemoveRequestedServiceList() error {
	err16 := b.RemoveData(AdvTypeServiceSolicitation16Bit)
	err128 := b.RemoveData(AdvTypeServiceSolicitation128Bit)
	if err16 != nil && err128 != nil {
		return ErrNotFound
	}
	return nil
}

// SetServiceData sets the service data of the payload. A payload carries a
// single service data field: any existing 16-bit or 128-bit service data is
// replaced. The field type follows from the UUID width.
func (b *AdvertisingDataBuilder) SetServiceData(service UUID, data []byte) error {
	typ, uuidLen := serviceDataType(service)
	if uuidLen+len(data) > MaxAdvertisingFieldValueLength {
		return ErrInvalidParam
	}
	var uuidBytes [16]byte
	u := service.appendLittleEndian(uuidBytes[:0])

	if off, ok := b.findField(typ); ok && b.fieldValueLength(off) == uuidLen+len(data) {
		if _, other := b.findField(otherServiceDataType(typ)); !other {
			copy(b.buf[off+fieldHeaderSize:], u)
			copy(b.buf[off+fieldHeaderSize+uuidLen:], data)
			return nil
		}
	}
	used := b.n
	for _, t := range [...]AdvertisingDataType{AdvTypeServiceData16Bit, AdvTypeServiceData128Bit} {
		if off, ok := b.findField(t); ok {
			used -= b.fieldSize(off)
		}
	}
	if used+fieldHeaderSize+uuidLen+len(data) > len(b.buf) {
		return ErrBufferOverflow
	}
	for _, t := range [...]AdvertisingDataType{AdvTypeServiceData16Bit, AdvTypeServiceData128Bit} {
		if off, ok := b.findField(t); ok {
			b.removeField(off)
		}
	}
	b.buf[b.n] = byte(uuidLen + len(data) + 1)
	b.buf[b.n+1] = byte(typ)
	copy(b.buf[b.n+fieldHeaderSize:], u)
	copy(b.buf[b.n+fieldHeaderSize+uuidLen:], data)
	b.n += fieldHeaderSize + uuidLen + len(data)
	return nil
}

// GetServiceData returns the data associated with a service, without the
// service UUID.
func (b *AdvertisingDataBuilder) GetServiceData(service UUID) ([]byte, error) {
	typ, uuidLen := serviceDataType(service)
	var uuidBytes [16]byte
	off, ok := b.findServiceData(typ, service.appendLittleEndian(uuidBytes[:0]))
	if !ok {
		return nil, ErrNotFound
	}
	return b.fieldValue(off)[uuidLen:], nil
}

// RemoveServiceData removes the service data field when it belongs to the
// given service.
func (b *AdvertisingDataBuilder) RemoveServiceData(service UUID) error {
	typ, _ := serviceDataType(service)
	var uuidBytes [16]byte
	off, ok := b.findServiceData(typ, service.appendLittleEndian(uuidBytes[:0]))
	if !ok {
		return ErrNotFound
	}
	b.removeField(off)
	return nil
}

func serviceDataType(service UUID) (AdvertisingDataType, int) {
	if service.Is16Bit() {
		return AdvTypeServiceData16Bit, 2
	}
	return AdvTypeServiceData128Bit, 16
}

func otherServiceDataType(typ AdvertisingDataType) AdvertisingDataType {
	if typ == AdvTypeServiceData16Bit {
		return AdvTypeServiceData128Bit
	}
	return AdvTypeServiceData16Bit
}

// setUUIDData replaces the fields of type short and long (and the fields in
// also, if any) with the given UUIDs, split by width. Either every UUID is
// written or the payload is left untouched.
func (b *AdvertisingDataBuilder) setUUIDData(uuids []UUID, short, long AdvertisingDataType, also ...AdvertisingDataType) error {
	n16, n128 := 0, 0
	for _, u := range uuids {
		if u.Is16Bit() {
			n16++
		} else {
			n128++
		}
	}
	if n16*2 > MaxAdvertisingFieldValueLength || n128*16 > MaxAdvertisingFieldValueLength {
		return ErrInvalidParam
	}

	required := 0
	if n16 > 0 {
		required += fieldHeaderSize + n16*2
	}
	if n128 > 0 {
		required += fieldHeaderSize + n128*16
	}
	freed := 0
	for _, typ := range append([]AdvertisingDataType{short, long}, also...) {
		if off, ok := b.findField(typ); ok {
			freed += b.fieldSize(off)
		}
	}
	if b.n-freed+required > len(b.buf) {
		return ErrBufferOverflow
	}

	for _, typ := range append([]AdvertisingDataType{short, long}, also...) {
		if off, ok := b.findField(typ); ok {
			b.removeField(off)
		}
	}
	if n16 > 0 {
		b.writeUUIDField(short, uuids, n16*2, true)
	}
	if n128 > 0 {
		b.writeUUIDField(long, uuids, n128*16, false)
	}
	return nil
}

func (b *AdvertisingDataBuilder) writeUUIDField(typ AdvertisingDataType, uuids []UUID, size int, want16 bool) {
	b.buf[b.n] = byte(size + 1)
	b.buf[b.n+1] = byte(typ)
	v := b.buf[b.n+fieldHeaderSize : b.n+fieldHeaderSize : b.n+fieldHeaderSize+size]
	for _, u := range uuids {
		if u.Is16Bit() == want16 {
			v = u.appendLittleEndian(v)
		}
	}
	b.n += fieldHeaderSize + size
}

// findField returns the offset of the first field of the given type.
func (b *AdvertisingDataBuilder) findField(typ AdvertisingDataType) (int, bool) {
	for off := 0; off+1 < b.n && b.buf[off] != 0; off += b.fieldSize(off) {
		if AdvertisingDataType(b.buf[off+1]) == typ {
			return off, true
		}
	}
	return 0, false
}

// findServiceData returns the offset of the service data field whose value
// starts with the given UUID bytes.
func (b *AdvertisingDataBuilder) findServiceData(typ AdvertisingDataType, uuid []byte) (int, bool) {
	for off := 0; off+1 < b.n && b.buf[off] != 0; off += b.fieldSize(off) {
		if AdvertisingDataType(b.buf[off+1]) != typ || b.fieldValueLength(off) < len(uuid) {
			continue
		}
		if string(b.buf[off+fieldHeaderSize:off+fieldHeaderSize+len(uuid)]) == string(uuid) {
			return off, true
		}
	}
	return 0, false
}

func (b *AdvertisingDataBuilder) fieldSize(off int) int {
	return int(b.buf[off]) + 1
}

func (b *AdvertisingDataBuilder) fieldValueLength(off int) int {
	return int(b.buf[off]) - 1
}

func (b *AdvertisingDataBuilder) fieldValue(off int) []byte {
	return b.buf[off+fieldHeaderSize : off+b.fieldSize(off)]
}

func (b *AdvertisingDataBuilder) addField(typ AdvertisingDataType, value []byte) error {
	if b.n+fieldHeaderSize+len(value) > len(b.buf) {
		return ErrBufferOverflow
	}
	b.buf[b.n] = byte(len(value) + 1)
	b.buf[b.n+1] = byte(typ)
	copy(b.buf[b.n+fieldHeaderSize:], value)
	b.n += fieldHeaderSize + len(value)
	return nil
}

func (b *AdvertisingDataBuilder) replaceField(off int, typ AdvertisingDataType, value []byte) error {
	if b.fieldValueLength(off) == len(value) {
		copy(b.buf[off+fieldHeaderSize:], value)
		return nil
	}
	if b.n-b.fieldSize(off)+fieldHeaderSize+len(value) > len(b.buf) {
		return ErrBufferOverflow
	}
	b.removeField(off)
	return b.addField(typ, value)
}

func (b *AdvertisingDataBuilder) appendToField(off int, value []byte) error {
	if b.fieldValueLength(off)+len(value) > MaxAdvertisingFieldValueLength {
		return ErrInvalidParam
	}
	if b.n+len(value) > len(b.buf) {
		return ErrBufferOverflow
	}
	end := off + b.fieldSize(off)
	copy(b.buf[end+len(value):], b.buf[end:b.n])
	copy(b.buf[end:], value)
	b.buf[off] += byte(len(value))
	b.n += len(value)
	return nil
}

// removeField removes the field at off and shifts the trailing fields left.
func (b *AdvertisingDataBuilder) removeField(off int) {
	size := b.fieldSize(off)
	copy(b.buf[off:], b.buf[off+size:b.n])
	clear(b.buf[b.n-size : b.n])
	b.n -= size
}
