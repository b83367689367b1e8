// Package hcisim provides a simulated controller for host-side testing and
// for running the examples without a radio.
//
// The controller records every command it receives. Commands confirmed
// asynchronously on a real controller complete through the event sink,
// either right away (the default) or when Complete is called. Events a radio
// would raise on its own, such as advertising reports or connections, are
// injected with the Inject helpers.
package hcisim

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	bluetooth "tinygo.org/x/blehost"
)

// Command is a command received by the controller.
type Command struct {
	Name    string
	Handle  bluetooth.AdvertisingHandle
	Enable  bool
	Data    []byte
	Address bluetooth.Address
}

// AdvertisingSet is the controller copy of an advertising set.
type AdvertisingSet struct {
	Params         bluetooth.AdvertisingParameters
	Data           []byte
	ScanResponse   []byte
	Address        bluetooth.MAC
	Enabled        bool
	MaxEvents      uint8
	Periodic       bluetooth.PeriodicAdvertisingParameters
	PeriodicData   []byte
	PeriodicActive bool
}

// Controller is a simulated controller. It is safe for concurrent use.
type Controller struct {
	mu  sync.Mutex
	log logrus.FieldLogger

	caps   bluetooth.ControllerCapabilities
	manual bool
	sink   bluetooth.ControllerEventSink

	commands    []Command
	completions []bluetooth.CommandCompleteEvent
	failures    map[bluetooth.Opcode][]bluetooth.Status
	rejections  map[bluetooth.Opcode][]bluetooth.Status

	sets          map[bluetooth.AdvertisingHandle]*AdvertisingSet
	randomAddress bluetooth.MAC
	scanParams    bluetooth.ScanParameters
	scanning      bool
	initiating    bool
	syncing       bool

	resolvingList []bluetooth.Address
	resolution    bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithCapabilities overrides the capabilities reported by the controller.
func WithCapabilities(caps bluetooth.ControllerCapabilities) Option {
	return func(c *Controller) {
		c.caps = caps
	}
}

// WithManualCompletion keeps command completions until Complete or
// CompleteAll is called.
func WithManualCompletion() Option {
	return func(c *Controller) {
		c.manual = true
	}
}

// WithLogger sets the logger of the controller. Logs are discarded by
// default.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// DefaultCapabilities returns the capabilities of a controller supporting
// extended and periodic advertising, and address resolution.
func DefaultCapabilities() bluetooth.ControllerCapabilities {
	return bluetooth.ControllerCapabilities{
		MaxAdvertisingSets:                16,
		MaxAdvertisingDataLength:          1650,
		MaxActiveSetAdvertisingDataLength: 251,
		ResolvingListSize:                 8,
		AddressResolution:                 true,
		ExtendedAdvertising:               true,
		PeriodicAdvertising:               true,
	}
}

// New returns a simulated controller.
func New(opts ...Option) *Controller {
	c := &Controller{
		caps:       DefaultCapabilities(),
		failures:   make(map[bluetooth.Opcode][]bluetooth.Status),
		rejections: make(map[bluetooth.Opcode][]bluetooth.Status),
		sets:       make(map[bluetooth.AdvertisingHandle]*AdvertisingSet),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		log := logrus.New()
		log.SetOutput(io.Discard)
		c.log = log
	}
	c.log = c.log.WithField("component", "hcisim")
	return c
}

func (c *Controller) Init(sink bluetooth.ControllerEventSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink != nil {
		return fmt.Errorf("hcisim: already initialized")
	}
	c.sink = sink
	c.record(Command{Name: "Init"})
	return nil
}

func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = nil
	c.completions = nil
	c.record(Command{Name: "Shutdown"})
	return nil
}

func (c *Controller) Capabilities() bluetooth.ControllerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// FailNext makes the next completion of op report status instead of
// success. Failures queue up in call order.
func (c *Controller) FailNext(op bluetooth.Opcode, status bluetooth.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = append(c.failures[op], status)
}

// RejectNext makes the next resolving list command with opcode op return
// status as an error, without changing state or posting a completion.
func (c *Controller) RejectNext(op bluetooth.Opcode, status bluetooth.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejections[op] = append(c.rejections[op], status)
}

// rejection must be called with mu held.
func (c *Controller) rejection(op bluetooth.Opcode) error {
	queue := c.rejections[op]
	if len(queue) == 0 {
		return nil
	}
	c.rejections[op] = queue[1:]
	return fmt.Errorf("hcisim: %w", queue[0])
}

// Commands returns the commands received so far.
func (c *Controller) Commands() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Command(nil), c.commands...)
}

// CommandNames returns the names of the commands received so far.
func (c *Controller) CommandNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.commands))
	for i, cmd := range c.commands {
		names[i] = cmd.Name
	}
	return names
}

// ResetCommands forgets the commands received so far.
func (c *Controller) ResetCommands() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = nil
}

// PendingCompletions returns the number of completions kept by manual
// completion.
func (c *Controller) PendingCompletions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.completions)
}

// Complete posts the oldest kept completion. It returns false when there is
// none.
func (c *Controller) Complete() bool {
	c.mu.Lock()
	if len(c.completions) == 0 {
		c.mu.Unlock()
		return false
	}
	ev := c.completions[0]
	c.completions = c.completions[1:]
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		if err := sink.PostControllerEvent(ev); err != nil {
			c.log.WithError(err).Warn("completion dropped")
		}
	}
	return true
}

// CompleteAll posts every kept completion.
func (c *Controller) CompleteAll() {
	for c.Complete() {
	}
}

// Set returns a copy of the controller state of an advertising set.
func (c *Controller) Set(handle bluetooth.AdvertisingHandle) (AdvertisingSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[handle]
	if !ok {
		return AdvertisingSet{}, false
	}
	return *set, true
}

// Advertising reports whether the set is enabled.
func (c *Controller) Advertising(handle bluetooth.AdvertisingHandle) bool {
	set, ok := c.Set(handle)
	return ok && set.Enabled
}

// Scanning reports whether scanning is enabled.
func (c *Controller) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// RandomAddress returns the random address used for scanning and
// initiating.
func (c *Controller) RandomAddress() bluetooth.MAC {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.randomAddress
}

// ResolvingList returns the identities in the resolving list.
func (c *Controller) ResolvingList() []bluetooth.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bluetooth.Address(nil), c.resolvingList...)
}

// AddressResolutionEnabled reports whether address resolution is on.
func (c *Controller) AddressResolutionEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolution
}

// record must be called with mu held.
func (c *Controller) record(cmd Command) {
	c.commands = append(c.commands, cmd)
	c.log.WithFields(logrus.Fields{
		"handle": cmd.Handle,
		"enable": cmd.Enable,
	}).Debug(cmd.Name)
}

// complete queues the completion of a command and returns the status it
// reports. It must be called with mu held; the event is posted by flush.
func (c *Controller) complete(ev bluetooth.CommandCompleteEvent) bluetooth.Status {
	if failures := c.failures[ev.Opcode]; len(failures) > 0 {
		ev.Status = failures[0]
		c.failures[ev.Opcode] = failures[1:]
	}
	c.completions = append(c.completions, ev)
	return ev.Status
}

// flush posts the queued completions unless completion is manual. It must be
// called without mu held.
func (c *Controller) flush() {
	c.mu.Lock()
	manual := c.manual
	c.mu.Unlock()
	if !manual {
		c.CompleteAll()
	}
}

// inject posts an event raised by the controller.
func (c *Controller) inject(ev bluetooth.ControllerEvent) error {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink == nil {
		return fmt.Errorf("hcisim: not initialized")
	}
	return sink.PostControllerEvent(ev)
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
