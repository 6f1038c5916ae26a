package influxdb

import "errors"

// Domain errors for the time-series store client. Check with errors.Is():
//
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // the worker runs without historisation
//	}
var (
	// ErrDisabled indicates the sink is switched off in configuration.
	// cmd/bacpipes treats this as "run without the sink", not a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed indicates the startup ping did not succeed.
	// Startup connectivity is fatal for the sink (readings would be
	// silently lost otherwise); transient failures after startup surface
	// through the async write-error callback instead.
	ErrConnectionFailed = errors.New("influxdb: server unreachable or unhealthy")

	// ErrClosed indicates use after Close. Reaching it means a shutdown
	// ordering bug: the sink bridge must be unsubscribed before its store
	// client closes.
	ErrClosed = errors.New("influxdb: client closed")

	// ErrInvalidWriteOptions indicates batch_size/flush_interval values
	// outside the accepted range.
	ErrInvalidWriteOptions = errors.New("influxdb: invalid write options")
)
