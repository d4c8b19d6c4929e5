package testutils

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// DongleAddress is the peripheral address used across tests.
const DongleAddress = "AA:BB:CC:DD:EE:01"

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Output *bytes.Buffer
}

// NewTestHelper creates a test helper whose logger writes into an inspectable buffer.
func NewTestHelper(t *testing.T) *TestHelper {
	var out bytes.Buffer
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetOutput(&out)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Output: &out,
	}
}

// Eventually polls cond until it holds or the timeout elapses.
func (h *TestHelper) Eventually(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
