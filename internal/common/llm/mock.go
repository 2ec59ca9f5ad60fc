package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests. Replies are returned in order;
// when the script runs out the last entry repeats. An Err set on a reply is
// returned instead of its text.
type MockClient struct {
	mu      sync.Mutex
	Replies []MockReply
	Calls   []Request
	idx     int
}

type MockReply struct {
	Text string
	Err  error
}

func NewMockClient(replies ...MockReply) *MockClient {
	return &MockClient{Replies: replies}
}

func (m *MockClient) Complete(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if len(m.Replies) == 0 {
		return "", nil
	}
	reply := m.Replies[m.idx]
	if m.idx < len(m.Replies)-1 {
		m.idx++
	}
	if reply.Err != nil {
		return "", reply.Err
	}
	return reply.Text, nil
}

// CallCount reports how many completions were requested.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or a zero Request if none.
func (m *MockClient) LastCall() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Request{}
	}
	return m.Calls[len(m.Calls)-1]
}
