package relay

import (
	"errors"

	"github.com/dkeye/voicecall/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrMemberClosed = errors.New("member closed")
)

// Member is one connected signaling socket. Owned by the transport adapter;
// the hub closes it only when it is replaced or kicked.
type Member interface {
	ID() domain.ClientID
	// TrySend queues data without blocking.
	TrySend(data []byte) error
	Close()
}
