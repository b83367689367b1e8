package bluetooth

import (
	"errors"
	"fmt"
)

// Request-level errors returned synchronously by the advertising data
// builder, the GAP and the private address controller. Operations wrap them
// with context, so test for them with errors.Is.
var (
	ErrAlreadyPresent        = errors.New("bluetooth: already present")
	ErrNotFound              = errors.New("bluetooth: not found")
	ErrBufferOverflow        = errors.New("bluetooth: buffer overflow")
	ErrInvalidParam          = errors.New("bluetooth: invalid parameter")
	ErrInvalidState          = errors.New("bluetooth: invalid state")
	ErrOperationNotPermitted = errors.New("bluetooth: operation not permitted")
	ErrResourceExhausted     = errors.New("bluetooth: resource exhausted")

	ErrNotEnabled = fmt.Errorf("%w: adapter not enabled", ErrInvalidState)
)

// Status is a status code reported by the controller, using the HCI error
// code space. It is carried by every event that confirms or denies an
// operation that was previously accepted.
type Status uint8

const (
	StatusSuccess                      Status = 0x00
	StatusUnknownCommand               Status = 0x01
	StatusUnknownConnectionID          Status = 0x02
	StatusHardwareFailure              Status = 0x03
	StatusAuthenticationFailure        Status = 0x05
	StatusMemoryCapacityExceeded       Status = 0x07
	StatusConnectionTimeout            Status = 0x08
	StatusConnectionLimitExceeded      Status = 0x09
	StatusCommandDisallowed            Status = 0x0C
	StatusRejectedLimitedResources     Status = 0x0D
	StatusUnsupportedFeature           Status = 0x11
	StatusInvalidParameters            Status = 0x12
	StatusRemoteUserTerminated         Status = 0x13
	StatusLocalHostTerminated          Status = 0x16
	StatusUnspecifiedError             Status = 0x1F
	StatusControllerBusy               Status = 0x3A
	StatusAdvertisingTimeout           Status = 0x3C
	StatusConnectionFailedToEstablish  Status = 0x3E
	StatusLimitReached                 Status = 0x43
	StatusOperationCancelledByHost     Status = 0x44
	StatusUnknownAdvertisingIdentifier Status = 0x42
)

func (s Status) Error() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnknownCommand:
		return "unknown HCI command"
	case StatusUnknownConnectionID:
		return "unknown connection identifier"
	case StatusHardwareFailure:
		return "hardware failure"
	case StatusAuthenticationFailure:
		return "authentication failure"
	case StatusMemoryCapacityExceeded:
		return "memory capacity exceeded"
	case StatusConnectionTimeout:
		return "connection timeout"
	case StatusConnectionLimitExceeded:
		return "connection limit exceeded"
	case StatusCommandDisallowed:
		return "command disallowed"
	case StatusRejectedLimitedResources:
		return "connection rejected due to limited resources"
	case StatusUnsupportedFeature:
		return "unsupported feature or parameter value"
	case StatusInvalidParameters:
		return "invalid HCI command parameters"
	case StatusRemoteUserTerminated:
		return "remote user terminated connection"
	case StatusLocalHostTerminated:
		return "connection terminated by local host"
	case StatusUnspecifiedError:
		return "unspecified error"
	case StatusControllerBusy:
		return "controller busy"
	case StatusAdvertisingTimeout:
		return "advertising timeout"
	case StatusConnectionFailedToEstablish:
		return "connection failed to be established"
	case StatusUnknownAdvertisingIdentifier:
		return "unknown advertising identifier"
	case StatusLimitReached:
		return "limit reached"
	case StatusOperationCancelledByHost:
		return "operation cancelled by host"
	default:
		return fmt.Sprintf("controller error 0x%02X", uint8(s))
	}
}

// Err returns nil for StatusSuccess and the status itself otherwise.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	return s
}
