// Package mocks provides test doubles for the datagen client.
package mocks

import (
	"context"
	"encoding/json"

	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// ExecuteTool provides a mock function with given fields: ctx, tool, args
func (_m *MockClient) ExecuteTool(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	ret := _m.Called(ctx, tool, args)

	if len(ret) == 0 {
		panic("no return value specified for ExecuteTool")
	}

	var r0 json.RawMessage
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, map[string]any) (json.RawMessage, error)); ok {
		return rf(ctx, tool, args)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, map[string]any) json.RawMessage); ok {
		r0 = rf(ctx, tool, args)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(json.RawMessage)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, map[string]any) error); ok {
		r1 = rf(ctx, tool, args)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
