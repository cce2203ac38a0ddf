// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/reporting-cli/api/schemas"
)

// -- Status Reporter Mock --

// MockReporter mocks schemas.StatusReporter. Messages are also kept in order
// so tests can assert on the sequence without setting expectations.
type MockReporter struct {
	mock.Mock
	mu       sync.Mutex
	messages []string
}

func NewMockReporter() *MockReporter {
	m := &MockReporter{}
	m.On("Start", mock.Anything).Maybe()
	m.On("Info", mock.Anything).Maybe()
	m.On("Fail", mock.Anything).Maybe()
	m.On("Succeed", mock.Anything).Maybe()
	return m
}

func (m *MockReporter) record(kind, msg string) {
	m.mu.Lock()
	m.messages = append(m.messages, kind+": "+msg)
	m.mu.Unlock()
}

func (m *MockReporter) Start(msg string) {
	m.record("start", msg)
	m.Called(msg)
}

func (m *MockReporter) Info(msg string) {
	m.record("info", msg)
	m.Called(msg)
}

func (m *MockReporter) Fail(msg string) {
	m.record("fail", msg)
	m.Called(msg)
}

func (m *MockReporter) Succeed(msg string) {
	m.record("succeed", msg)
	m.Called(msg)
}

// Messages returns the reported lines as "kind: message".
func (m *MockReporter) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// -- Browser Mocks --

// MockLauncher mocks schemas.Launcher.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, req schemas.ReportRequest) (schemas.BrowserSession, error) {
	args := m.Called(ctx, req)
	sess, _ := args.Get(0).(schemas.BrowserSession)
	return sess, args.Error(1)
}

// MockSession mocks schemas.BrowserSession.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) ID() string {
	return m.Called().String(0)
}

func (m *MockSession) Primary() schemas.Page {
	page, _ := m.Called().Get(0).(schemas.Page)
	return page
}

func (m *MockSession) Verification() schemas.Page {
	page, _ := m.Called().Get(0).(schemas.Page)
	return page
}

func (m *MockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var (
	_ schemas.StatusReporter = (*MockReporter)(nil)
	_ schemas.Launcher       = (*MockLauncher)(nil)
	_ schemas.BrowserSession = (*MockSession)(nil)
)
