package nova

import "context"

// Transport establishes one bidirectional stream per session. The manager
// hands Open a pull-driven source of outbound wire frames and consumes the
// returned inbound stream until EOF or error.
type Transport interface {
	Open(ctx context.Context, sessionID string, outbound OutboundSource) (InboundStream, error)
}

// OutboundSource yields the next marshaled wire event for a session. Next
// blocks until an event is available, returns io.EOF once the session has
// closed and the queue is drained, and returns ctx.Err() if the consumer
// gives up first.
type OutboundSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// InboundStream yields raw frames from the upstream service. Recv returns
// io.EOF when the service ends the stream.
type InboundStream interface {
	Recv() ([]byte, error)
	Close() error
}
