package carrier

import (
	"context"
	"reflect"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/openparcel/openparcel/driver"
)

// MockDriver is a go.uber.org/mock double for driver.Driver, written in
// the shape mockgen produces, used where a test needs EXPECT()-style
// call assertions rather than fakeDriver's simpler canned-return stub.
type MockDriver struct {
	ctrl     *gomock.Controller
	recorder *MockDriverMockRecorder
}

type MockDriverMockRecorder struct {
	mock *MockDriver
}

func NewMockDriver(ctrl *gomock.Controller) *MockDriver {
	mock := &MockDriver{ctrl: ctrl}
	mock.recorder = &MockDriverMockRecorder{mock}
	return mock
}

func (m *MockDriver) EXPECT() *MockDriverMockRecorder {
	return m.recorder
}

var _ driver.Driver = (*MockDriver)(nil)

func (m *MockDriver) Open(ctx context.Context, url string, timeout time.Duration) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Open", ctx, url, timeout)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockDriverMockRecorder) Open(ctx, url, timeout any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Open", reflect.TypeOf((*MockDriver)(nil).Open), ctx, url, timeout)
}

func (m *MockDriver) Inject(script string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Inject", script)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockDriverMockRecorder) Inject(script any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Inject", reflect.TypeOf((*MockDriver)(nil).Inject), script)
}

func (m *MockDriver) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (int, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "WaitForAny", ctx, selectors, timeout)
	ret0, _ := ret[0].(int)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockDriverMockRecorder) WaitForAny(ctx, selectors, timeout any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "WaitForAny", reflect.TypeOf((*MockDriver)(nil).WaitForAny), ctx, selectors, timeout)
}

func (m *MockDriver) WaitForTitle(ctx context.Context, substring string, timeout time.Duration) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "WaitForTitle", ctx, substring, timeout)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockDriverMockRecorder) WaitForTitle(ctx, substring, timeout any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "WaitForTitle", reflect.TypeOf((*MockDriver)(nil).WaitForTitle), ctx, substring, timeout)
}

func (m *MockDriver) Evaluate(expression string) (any, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Evaluate", expression)
	ret0 := ret[0]
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockDriverMockRecorder) Evaluate(expression any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Evaluate", reflect.TypeOf((*MockDriver)(nil).Evaluate), expression)
}

func (m *MockDriver) Close() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Close")
}

func (mr *MockDriverMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockDriver)(nil).Close))
}
