package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/wanderlust-ai/internal/outputs/email"
)

// Sender records messages instead of sending them.
type Sender struct {
	Err error

	mu       sync.Mutex
	messages []email.Message
}

func (s *Sender) Send(ctx context.Context, message email.Message) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *Sender) Messages() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.messages...)
}
