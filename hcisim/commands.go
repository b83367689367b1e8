package hcisim

import (
	"fmt"

	bluetooth "tinygo.org/x/blehost"
)

// Errors returned when a command is refused, the way a controller reports a
// failed Command Status.
var (
	errUnknownSet   = fmt.Errorf("hcisim: %w", bluetooth.StatusUnknownAdvertisingIdentifier)
	errDisallowed   = fmt.Errorf("hcisim: %w", bluetooth.StatusCommandDisallowed)
	errInvalidParam = fmt.Errorf("hcisim: %w", bluetooth.StatusInvalidParameters)
)

func (c *Controller) set(handle bluetooth.AdvertisingHandle) *AdvertisingSet {
	set, ok := c.sets[handle]
	if !ok {
		set = &AdvertisingSet{}
		c.sets[handle] = set
	}
	return set
}

func (c *Controller) SetAdvertisingParameters(handle bluetooth.AdvertisingHandle, params bluetooth.AdvertisingParameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(handle) >= c.caps.MaxAdvertisingSets {
		return errUnknownSet
	}
	if err := params.Validate(); err != nil {
		return errInvalidParam
	}
	c.record(Command{Name: "SetAdvertisingParameters", Handle: handle})
	c.set(handle).Params = params
	return nil
}

func (c *Controller) SetAdvertisingData(handle bluetooth.AdvertisingHandle, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.set(handle)
	if set.Enabled && len(data) > c.caps.MaxActiveSetAdvertisingDataLength {
		return errDisallowed
	}
	c.record(Command{Name: "SetAdvertisingData", Handle: handle, Data: cloneBytes(data)})
	set.Data = cloneBytes(data)
	return nil
}

func (c *Controller) SetScanResponseData(handle bluetooth.AdvertisingHandle, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.set(handle)
	if set.Enabled && len(data) > c.caps.MaxActiveSetAdvertisingDataLength {
		return errDisallowed
	}
	c.record(Command{Name: "SetScanResponseData", Handle: handle, Data: cloneBytes(data)})
	set.ScanResponse = cloneBytes(data)
	return nil
}

func (c *Controller) SetAdvertisingSetRandomAddress(handle bluetooth.AdvertisingHandle, addr bluetooth.MAC) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.set(handle)
	if set.Enabled {
		return errDisallowed
	}
	c.record(Command{
		Name:    "SetAdvertisingSetRandomAddress",
		Handle:  handle,
		Address: bluetooth.Address{MAC: addr, Type: bluetooth.AddressTypeRandom},
	})
	set.Address = addr
	return nil
}

func (c *Controller) SetAdvertisingEnable(enable bool, sets []bluetooth.AdvertisingEnableEntry) error {
	c.mu.Lock()
	for _, entry := range sets {
		if _, ok := c.sets[entry.Handle]; !ok && entry.Handle != bluetooth.LegacyAdvertisingHandle {
			c.mu.Unlock()
			return errUnknownSet
		}
	}
	for _, entry := range sets {
		c.record(Command{Name: "SetAdvertisingEnable", Handle: entry.Handle, Enable: enable})
		set := c.set(entry.Handle)
		status := c.complete(bluetooth.CommandCompleteEvent{
			Opcode: bluetooth.OpcodeSetAdvertisingEnable,
			Handle: entry.Handle,
			Enable: enable,
		})
		if status == bluetooth.StatusSuccess {
			set.Enabled = enable
			set.MaxEvents = entry.MaxEvents
		}
	}
	c.mu.Unlock()
	c.flush()
	return nil
}

func (c *Controller) RemoveAdvertisingSet(handle bluetooth.AdvertisingHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[handle]
	if !ok {
		return errUnknownSet
	}
	if set.Enabled || set.PeriodicActive {
		return errDisallowed
	}
	c.record(Command{Name: "RemoveAdvertisingSet", Handle: handle})
	delete(c.sets, handle)
	return nil
}

func (c *Controller) SetPeriodicAdvertisingParameters(handle bluetooth.AdvertisingHandle, params bluetooth.PeriodicAdvertisingParameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.caps.PeriodicAdvertising {
		return fmt.Errorf("hcisim: %w", bluetooth.StatusUnknownCommand)
	}
	set, ok := c.sets[handle]
	if !ok {
		return errUnknownSet
	}
	c.record(Command{Name: "SetPeriodicAdvertisingParameters", Handle: handle})
	set.Periodic = params
	return nil
}

func (c *Controller) SetPeriodicAdvertisingData(handle bluetooth.AdvertisingHandle, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[handle]
	if !ok {
		return errUnknownSet
	}
	c.record(Command{Name: "SetPeriodicAdvertisingData", Handle: handle, Data: cloneBytes(data)})
	set.PeriodicData = cloneBytes(data)
	return nil
}

func (c *Controller) SetPeriodicAdvertisingEnable(handle bluetooth.AdvertisingHandle, enable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[handle]
	if !ok {
		return errUnknownSet
	}
	c.record(Command{Name: "SetPeriodicAdvertisingEnable", Handle: handle, Enable: enable})
	set.PeriodicActive = enable
	return nil
}

func (c *Controller) SetRandomAddress(addr bluetooth.MAC) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanning || c.initiating {
		return errDisallowed
	}
	c.record(Command{Name: "SetRandomAddress", Address: bluetooth.Address{MAC: addr, Type: bluetooth.AddressTypeRandom}})
	c.randomAddress = addr
	return nil
}

func (c *Controller) SetScanParameters(params bluetooth.ScanParameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanning {
		return errDisallowed
	}
	c.record(Command{Name: "SetScanParameters"})
	c.scanParams = params
	return nil
}

func (c *Controller) SetScanEnable(enable, filterDuplicates bool) error {
	c.mu.Lock()
	c.record(Command{Name: "SetScanEnable", Enable: enable})
	status := c.complete(bluetooth.CommandCompleteEvent{
		Opcode: bluetooth.OpcodeSetScanEnable,
		Enable: enable,
	})
	if status == bluetooth.StatusSuccess {
		c.scanning = enable
	}
	c.mu.Unlock()
	c.flush()
	return nil
}

func (c *Controller) CreateConnection(peer bluetooth.Address, params bluetooth.ConnectionParameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initiating {
		return errDisallowed
	}
	c.record(Command{Name: "CreateConnection", Address: peer})
	c.initiating = true
	return nil
}

func (c *Controller) CancelConnection() error {
	c.mu.Lock()
	if !c.initiating {
		c.mu.Unlock()
		return errDisallowed
	}
	c.record(Command{Name: "CancelConnection"})
	c.initiating = false
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		return sink.PostControllerEvent(bluetooth.ConnectionCompleteEvent{
			Status: bluetooth.StatusUnknownConnectionID,
			Handle: bluetooth.InvalidConnectionHandle,
			Role:   bluetooth.RoleCentral,
		})
	}
	return nil
}

func (c *Controller) CreateSync(advertiser bluetooth.Address, sid uint8, skip uint16, timeout uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncing {
		return errDisallowed
	}
	c.record(Command{Name: "CreateSync", Address: advertiser})
	c.syncing = true
	return nil
}

func (c *Controller) CancelCreateSync() error {
	c.mu.Lock()
	if !c.syncing {
		c.mu.Unlock()
		return errDisallowed
	}
	c.record(Command{Name: "CancelCreateSync"})
	c.syncing = false
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		return sink.PostControllerEvent(bluetooth.PeriodicSyncEstablishedEvent{
			Status: bluetooth.StatusOperationCancelledByHost,
		})
	}
	return nil
}

func (c *Controller) SetPhy(conn bluetooth.ConnectionHandle, tx, rx bluetooth.PHY) error {
	c.mu.Lock()
	c.record(Command{Name: "SetPhy"})
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		return sink.PostControllerEvent(bluetooth.PhyUpdateCompleteEvent{
			Status: bluetooth.StatusSuccess,
			Handle: conn,
			TxPHY:  tx,
			RxPHY:  rx,
		})
	}
	return nil
}

func (c *Controller) AddDeviceToResolvingList(peer bluetooth.Address, peerIRK, localIRK bluetooth.IRK) error {
	c.mu.Lock()
	c.record(Command{Name: "AddDeviceToResolvingList", Address: peer})
	if err := c.rejection(bluetooth.OpcodeAddDeviceToResolvingList); err != nil {
		c.mu.Unlock()
		return err
	}
	ev := bluetooth.CommandCompleteEvent{Opcode: bluetooth.OpcodeAddDeviceToResolvingList}
	if len(c.resolvingList) >= c.caps.ResolvingListSize {
		ev.Status = bluetooth.StatusMemoryCapacityExceeded
	}
	if c.complete(ev) == bluetooth.StatusSuccess {
		c.resolvingList = append(c.resolvingList, peer)
	}
	c.mu.Unlock()
	c.flush()
	return nil
}

func (c *Controller) RemoveDeviceFromResolvingList(peer bluetooth.Address) error {
	c.mu.Lock()
	c.record(Command{Name: "RemoveDeviceFromResolvingList", Address: peer})
	if err := c.rejection(bluetooth.OpcodeRemoveDeviceFromResolvingList); err != nil {
		c.mu.Unlock()
		return err
	}
	index := -1
	for i, entry := range c.resolvingList {
		if entry == peer {
			index = i
		}
	}
	ev := bluetooth.CommandCompleteEvent{Opcode: bluetooth.OpcodeRemoveDeviceFromResolvingList}
	if index < 0 {
		ev.Status = bluetooth.StatusUnknownConnectionID
	}
	if c.complete(ev) == bluetooth.StatusSuccess {
		c.resolvingList = append(c.resolvingList[:index], c.resolvingList[index+1:]...)
	}
	c.mu.Unlock()
	c.flush()
	return nil
}

func (c *Controller) ClearResolvingList() error {
	c.mu.Lock()
	c.record(Command{Name: "ClearResolvingList"})
	if err := c.rejection(bluetooth.OpcodeClearResolvingList); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.complete(bluetooth.CommandCompleteEvent{Opcode: bluetooth.OpcodeClearResolvingList}) == bluetooth.StatusSuccess {
		c.resolvingList = nil
	}
	c.mu.Unlock()
	c.flush()
	return nil
}

func (c *Controller) SetAddressResolutionEnable(enable bool) error {
	c.mu.Lock()
	if !c.caps.AddressResolution {
		c.mu.Unlock()
		return fmt.Errorf("hcisim: %w", bluetooth.StatusUnknownCommand)
	}
	c.record(Command{Name: "SetAddressResolutionEnable", Enable: enable})
	if err := c.rejection(bluetooth.OpcodeSetAddressResolutionEnable); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.complete(bluetooth.CommandCompleteEvent{Opcode: bluetooth.OpcodeSetAddressResolutionEnable}) == bluetooth.StatusSuccess {
		c.resolution = enable
	}
	c.mu.Unlock()
	c.flush()
	return nil
}

var _ bluetooth.Controller = (*Controller)(nil)
