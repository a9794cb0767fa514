package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock implementing Logger, for asserting on emitted log lines.
//
// Log methods are matched as (msg, keysAndValues), for example:
//
//	m.On("Warn", "request timed out", mock.Anything)
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// AllowAll accepts every log call and makes With return m itself, so that only the calls of
// interest need explicit assertions.
func (m *MockLogger) AllowAll() *MockLogger {
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Maybe()
	}
	m.On("With", mock.Anything).Return(m).Maybe()

	return m
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) { m.logCall("Debug", msg, keysAndValues) }
func (m *MockLogger) Info(msg string, keysAndValues ...any)  { m.logCall("Info", msg, keysAndValues) }
func (m *MockLogger) Warn(msg string, keysAndValues ...any)  { m.logCall("Warn", msg, keysAndValues) }
func (m *MockLogger) Error(msg string, keysAndValues ...any) { m.logCall("Error", msg, keysAndValues) }
func (m *MockLogger) Fatal(msg string, keysAndValues ...any) { m.logCall("Fatal", msg, keysAndValues) }

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	level, _ := m.Called().Get(0).(Level)
	return level
}

// With matches the key/value pairs as one slice argument.
func (m *MockLogger) With(keyValues ...any) Logger {
	child, _ := m.Called(keyValues).Get(0).(Logger)
	return child
}

func (m *MockLogger) logCall(method, msg string, keysAndValues []any) {
	m.MethodCalled(method, msg, keysAndValues)
}
