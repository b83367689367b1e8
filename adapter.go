package bluetooth

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Adapter owns the host side of a controller: the event pump, the GAP and the
// private address controller. Its lifecycle is NewAdapter, Enable, then Run
// or repeated calls to ProcessEvents, and finally Close.
type Adapter struct {
	ctrl    Controller
	cfg     *Config
	log     logrus.FieldLogger
	logFile *lumberjack.Logger
	ticker  Ticker
	rand    io.Reader
	handler EventHandler

	queue   *eventQueue
	gap     *Gap
	privacy *PrivateAddressController
	enabled bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger of the adapter. By default a logger writing to
// stderr, or to Config.LogFile, at the configured log level is used.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Adapter) {
		a.log = log
	}
}

// WithConfig sets the configuration. DefaultConfig is used otherwise.
func WithConfig(cfg *Config) Option {
	return func(a *Adapter) {
		a.cfg = cfg
	}
}

// WithTicker sets the time source of the host timers.
func WithTicker(t Ticker) Option {
	return func(a *Adapter) {
		a.ticker = t
	}
}

// WithRandom sets the source of randomness of private addresses. It defaults
// to crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(a *Adapter) {
		a.rand = r
	}
}

// WithEventHandler sets the handler of GAP events.
func WithEventHandler(h EventHandler) Option {
	return func(a *Adapter) {
		a.handler = h
	}
}

// NewAdapter returns an adapter driving ctrl.
func NewAdapter(ctrl Controller, opts ...Option) *Adapter {
	if ctrl == nil {
		panic("bluetooth: nil controller")
	}
	a := &Adapter{
		ctrl:    ctrl,
		cfg:     DefaultConfig(),
		ticker:  SystemTicker{},
		rand:    rand.Reader,
		handler: NoopEventHandler{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		log := logrus.New()
		log.SetOutput(os.Stderr)
		if a.cfg.LogFile != "" {
			a.logFile = a.cfg.rotatingLogFile()
			log.SetOutput(a.logFile)
		}
		log.SetLevel(a.cfg.logLevel())
		a.log = log
	}
	a.log = a.log.WithField("component", "adapter")
	return a
}

// Enable starts the controller and creates the GAP and the private address
// controller. Controller events are queued from then on.
func (a *Adapter) Enable() error {
	if a.enabled {
		return fmt.Errorf("adapter already enabled: %w", ErrInvalidState)
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.queue = newEventQueue(a.cfg.EventQueueSize)
	if err := a.ctrl.Init(a); err != nil {
		return fmt.Errorf("init controller: %w", err)
	}
	caps := a.ctrl.Capabilities()
	a.privacy = newPrivateAddressController(a.ctrl, caps, a.queue, a.ticker, a.rand, a.cfg, a.log)
	a.gap = newGap(a.ctrl, caps, a.cfg, a.queue, a.ticker, a.privacy, a.log)
	a.gap.SetEventHandler(a.handler)
	a.enabled = true

	a.log.WithFields(logrus.Fields{
		"advertising_sets":   a.gap.MaxAdvertisingSetNumber(),
		"max_data_length":    caps.MaxAdvertisingDataLength,
		"address_resolution": caps.AddressResolution,
	}).Info("adapter enabled")
	return nil
}

// Gap returns the GAP of the adapter, or nil before Enable.
func (a *Adapter) Gap() *Gap {
	return a.gap
}

// Privacy returns the private address controller, or nil before Enable.
func (a *Adapter) Privacy() *PrivateAddressController {
	return a.privacy
}

// Config returns the configuration of the adapter.
func (a *Adapter) Config() *Config {
	return a.cfg
}

// PostControllerEvent queues an event raised by the controller. It never
// blocks and may be called from any goroutine.
func (a *Adapter) PostControllerEvent(ev ControllerEvent) error {
	if a.queue == nil {
		return ErrNotEnabled
	}
	err := a.queue.post(ev)
	if err != nil {
		a.log.WithError(err).Warn("dropping controller event")
	}
	return err
}

// ProcessEvents handles every queued event and timer expiry, then returns the
// number of entries handled. Handlers run on the calling goroutine.
func (a *Adapter) ProcessEvents() int {
	if !a.enabled {
		return 0
	}
	return a.queue.process(a.gap.dispatch)
}

// Run handles events as they arrive until ctx is done.
func (a *Adapter) Run(ctx context.Context) error {
	if !a.enabled {
		return ErrNotEnabled
	}
	return a.queue.run(ctx, a.gap.dispatch)
}

// Close stops the host timers and shuts the controller down.
func (a *Adapter) Close() error {
	if !a.enabled {
		return ErrNotEnabled
	}
	a.enabled = false
	a.gap.shutdown()
	a.privacy.shutdown()
	if err := a.ctrl.Shutdown(); err != nil {
		return fmt.Errorf("shutdown controller: %w", err)
	}
	a.log.Info("adapter closed")
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}
