// Package controller implements the client side of the smart-home devices.
//
// # Socket Controller
//
// SocketController drives a remote outlet over TCP using the framed protocol
// in package protocol. It holds at most one connection, dialled lazily on
// the first command and again whenever the previous one fails a liveness
// check or an exchange. Connect and each round trip are bounded by the
// configured timeout. Nothing is retried automatically.
//
//	sc := controller.NewSocketController(controller.SocketConfig{
//	    Address: "127.0.0.1:7878",
//	    Timeout: 2 * time.Second,
//	})
//	defer sc.Close()
//	if err := sc.TurnOn(ctx); err != nil {
//	    var devErr *controller.DeviceError
//	    if errors.As(err, &devErr) { ... }
//	}
//	watts, err := sc.Power(ctx)
//
// # Therm Controller
//
// ThermController listens for thermometer samples on UDP. A background
// goroutine polls the socket with a short read deadline; each valid sample
// updates the latest temperature and its freshness timestamp, wakes
// WaitForNewData callers and runs every callback registered with
// OnTemperatureChange. When the latest sample ages past MaxAge the listener
// announces ErrNoFreshData through the same paths.
//
//	tc := controller.NewThermController(controller.ThermConfig{
//	    ListenAddress: "127.0.0.1:7879",
//	    MaxAge:        5 * time.Second,
//	})
//	if err := tc.Start(); err != nil {
//	    return err
//	}
//	defer tc.Close()
//	h := tc.OnTemperatureChange(func(r controller.Reading) { ... })
//	defer h.Unsubscribe()
//
// # Errors
//
// All failures wrap one of the package sentinels (ErrConnection, ErrTimeout,
// ErrDevice, ErrCommand, ErrNoFreshData, ErrNetwork, ErrClosed); use
// errors.Is to classify them.
package controller
