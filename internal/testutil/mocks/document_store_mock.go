package mocks

import (
	"context"

	"github.com/stemsi/pisaprep/internal/remote"
	"github.com/stretchr/testify/mock"
)

// MockDocumentStore is a mock implementation of remote.DocumentStore
type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) Get(ctx context.Context, collection string, ids []string) ([]remote.Document, error) {
	args := m.Called(ctx, collection, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]remote.Document), args.Error(1)
}

func (m *MockDocumentStore) Merge(ctx context.Context, writes []remote.DocumentWrite) error {
	args := m.Called(ctx, writes)
	return args.Error(0)
}

func (m *MockDocumentStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
