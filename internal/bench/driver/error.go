package driver

import "fmt"

// ConfigError is returned when a bench adapter is given an invalid configuration
type ConfigError struct {
	device string
	msg    string
}

func NewConfigError(device, format string, args ...any) *ConfigError {
	return &ConfigError{device: device, msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s.Config: %s", e.device, e.msg)
}

// RuntimeError is returned when the external runtime backing an adapter
// cannot be located or started
type RuntimeError struct {
	runtime string
	err     error
}

func NewRuntimeError(runtime string, err error) *RuntimeError {
	return &RuntimeError{runtime: runtime, err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime `%s`: %s", e.runtime, e.err.Error())
}

func (e *RuntimeError) Unwrap() error {
	return e.err
}
