package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// TransportEventKind enumerates the events a transport delivers to a session.
type TransportEventKind int

const (
	TransportStatus TransportEventKind = iota + 1
	TransportHeaders
	TransportData
	TransportDone
	TransportError
)

func (k TransportEventKind) String() string {
	switch k {
	case TransportStatus:
		return "status"
	case TransportHeaders:
		return "headers"
	case TransportData:
		return "data"
	case TransportDone:
		return "done"
	case TransportError:
		return "error"
	default:
		return fmt.Sprintf("TransportEventKind(%d)", int(k))
	}
}

// TransportEvent is one event pushed by a transport into a Session. Only the
// field matching Kind is meaningful.
type TransportEvent struct {
	Kind       TransportEventKind
	StatusCode int
	Header     http.Header
	Data       []byte
	Err        error
}

// StatusEvent reports the response status code.
func StatusEvent(code int) TransportEvent {
	return TransportEvent{Kind: TransportStatus, StatusCode: code}
}

// HeadersEvent reports the response headers.
func HeadersEvent(h http.Header) TransportEvent {
	return TransportEvent{Kind: TransportHeaders, Header: h}
}

// DataEvent delivers a body fragment. The session does not retain data after
// Feed returns.
func DataEvent(data []byte) TransportEvent {
	return TransportEvent{Kind: TransportData, Data: data}
}

// DoneEvent signals the body ended normally.
func DoneEvent() TransportEvent {
	return TransportEvent{Kind: TransportDone}
}

// ErrorEvent signals the transport failed.
func ErrorEvent(err error) TransportEvent {
	return TransportEvent{Kind: TransportError, Err: err}
}

// TransportHandle controls an in-flight transport.
type TransportHandle interface {
	// Done is closed once the transport has stopped, for whatever reason.
	Done() <-chan struct{}

	// Stop aborts the transport and releases its connection. It must be safe
	// to call more than once and after the transport has finished.
	Stop()
}

// TransportWorker is the TransportHandle of a producer goroutine started by
// StartTransport.
type TransportWorker struct {
	cancel   context.CancelFunc
	done     chan struct{}
	grace    time.Duration
	stopOnce sync.Once
}

// StartTransport runs produce on its own goroutine with a cancellable child
// of ctx. Done closes once produce returns. Stop cancels the child context
// and waits up to grace for produce to return; grace <= 0 uses
// DefaultStopGrace.
func StartTransport(ctx context.Context, grace time.Duration, produce func(ctx context.Context)) *TransportWorker {
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &TransportWorker{
		cancel: cancel,
		done:   make(chan struct{}),
		grace:  grace,
	}
	go func() {
		defer close(w.done)
		defer cancel()
		produce(ctx)
	}()
	return w
}

func (w *TransportWorker) Done() <-chan struct{} {
	return w.done
}

// Stop cancels the producer and waits up to the grace period for it to
// release its resources.
func (w *TransportWorker) Stop() {
	w.stopOnce.Do(w.cancel)
	timer := time.NewTimer(w.grace)
	defer timer.Stop()
	select {
	case <-w.done:
	case <-timer.C:
	}
}
