package mocks

import (
	"context"

	"github.com/phrazzld/tasknotify/internal/broker"
	"github.com/stretchr/testify/mock"
)

// MockPublisher is a mock of broker.Publisher for use with testify/mock
type MockPublisher struct {
	mock.Mock
}

var _ broker.Publisher = (*MockPublisher)(nil)

// Publish is a mock implementation of broker.Publisher.Publish
func (m *MockPublisher) Publish(ctx context.Context, body []byte) error {
	args := m.Called(ctx, body)
	return args.Error(0)
}
