package rawsocket

// Metrics receives connection and traffic events of a Factory's connections.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// ConnOpened is called once a session is bound to a connection.
	ConnOpened(role Role)
	// ConnClosed is called once for every connection ConnOpened reported.
	ConnClosed(role Role, clean bool)
	// FrameReceived and FrameSent report one frame and its payload size.
	FrameReceived(role Role, size int)
	FrameSent(role Role, size int)
}

type nopMetrics struct{}

func (nopMetrics) ConnOpened(Role)         {}
func (nopMetrics) ConnClosed(Role, bool)   {}
func (nopMetrics) FrameReceived(Role, int) {}
func (nopMetrics) FrameSent(Role, int)     {}

// MetricsOption sets the receiver of connection metrics. By default nothing is recorded.
func MetricsOption(m Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
