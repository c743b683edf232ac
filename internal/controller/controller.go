package controller

import "fmt"

// Logger is the logging interface used by the controllers.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Controller is a client for one remote device. The set of implementations
// is closed: *SocketController and *ThermController.
type Controller interface {
	Report() string
	Close() error
	isController()
}

func (*SocketController) isController() {}
func (*ThermController) isController()  {}

// Describe names the controller and its endpoint.
func Describe(c Controller) string {
	switch c := c.(type) {
	case *SocketController:
		return fmt.Sprintf("socket controller (tcp %s)", c.Address())
	case *ThermController:
		return fmt.Sprintf("therm controller (udp %s)", c.ListenAddress())
	default:
		panic(fmt.Sprintf("controller: unknown controller type %T", c))
	}
}
