package nova

import (
	"context"
)

// outboundSource adapts the session queue to the transport's pull interface.
// The transport's send pump is the only consumer; FIFO order is preserved
// end to end because queue and pump are both single-lane.
type outboundSource struct {
	s *session
}

func (o *outboundSource) Next(ctx context.Context) ([]byte, error) {
	payload, err := o.s.queue.next(ctx)
	if err == nil {
		return payload, nil
	}
	if ctx.Err() != nil {
		// The transport abandoned the stream; anything still queued will
		// never be sent.
		o.s.deactivate()
	}
	return nil, err
}
