package mocks

import (
	"context"

	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/remote"
	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock of the remote gateway as seen by the reconciler and
// the content refresher.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) FetchProfile(ctx context.Context, ownerID string) (*model.RemoteProfile, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RemoteProfile), args.Error(1)
}

func (m *MockGateway) PushAttempt(ctx context.Context, a model.Attempt, answers []model.Answer) bool {
	args := m.Called(ctx, a, answers)
	return args.Bool(0)
}

func (m *MockGateway) PushProfile(ctx context.Context, p model.Profile) bool {
	args := m.Called(ctx, p)
	return args.Bool(0)
}

func (m *MockGateway) FetchCurrentContentMeta(ctx context.Context) (*model.ContentMeta, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ContentMeta), args.Error(1)
}

func (m *MockGateway) FetchByIDs(ctx context.Context, collection string, ids []string) ([]remote.Document, error) {
	args := m.Called(ctx, collection, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]remote.Document), args.Error(1)
}
