package mailbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MailboxTestSuite struct {
	suite.Suite
	mb *Mailbox
}

func (s *MailboxTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	s.mb = New(0, logger)
}

func (s *MailboxTestSuite) TearDownTest() {
	s.mb.Reset()
}

func TestMailboxTestSuite(t *testing.T) {
	suite.Run(t, new(MailboxTestSuite))
}

// TestStreamFlushesBacklogInOrder verifies late stream listeners see every earlier message first.
//
// GOAL: A stream attached after N arrivals receives exactly those N, in order, before newer data
//
// TEST SCENARIO: Deliver 3 messages with no consumer → start stream → deliver a 4th → all 4 in order
func (s *MailboxTestSuite) TestStreamFlushesBacklogInOrder() {
	for i := 1; i <= 3; i++ {
		s.mb.Deliver([]byte(fmt.Sprintf("m%d", i)))
	}
	s.Require().Equal(3, s.mb.Len())

	var got []string
	s.mb.StartStream(func(data []byte) { got = append(got, string(data)) })
	s.Require().Equal([]string{"m1", "m2", "m3"}, got, "backlog MUST be flushed synchronously on StartStream")

	s.mb.Deliver([]byte("m4"))
	s.Equal([]string{"m1", "m2", "m3", "m4"}, got)
	s.Equal(0, s.mb.Len())
	s.Equal(Stream, s.mb.Active())

	s.mb.StopStream()
	s.Equal(None, s.mb.Active())
	s.mb.Deliver([]byte("m5"))
	s.Equal(1, s.mb.Len(), "after StopStream messages MUST go back to the backlog")
}

// TestStreamTakesPriorityOverWaiter verifies the stream listener shadows a pending waiter.
//
// GOAL: When both consumers are set, the stream consumes the message and the waiter stays pending
//
// TEST SCENARIO: Arm waiter → start stream → deliver → stream gets it, waiter unresolved → stop stream → deliver → waiter gets it
func (s *MailboxTestSuite) TestStreamTakesPriorityOverWaiter() {
	var resolved atomic.Int32
	var waiterData string
	s.Require().NoError(s.mb.AwaitNext(time.Second, func(data []byte, ok bool) {
		resolved.Add(1)
		waiterData = string(data)
	}))

	var streamed []string
	s.mb.StartStream(func(data []byte) { streamed = append(streamed, string(data)) })
	s.mb.Deliver([]byte("banner"))

	s.Equal([]string{"banner"}, streamed)
	s.Equal(int32(0), resolved.Load(), "waiter MUST remain pending while a stream is installed")
	s.Equal(Stream, s.mb.Active())

	s.mb.StopStream()
	s.Equal(Waiter, s.mb.Active())
	s.mb.Deliver([]byte("R:OK"))

	s.Equal(int32(1), resolved.Load())
	s.Equal("R:OK", waiterData)
	s.Equal(None, s.mb.Active())
}

// TestAwaitNextBufferedMessage verifies a buffered reply is handed over synchronously.
//
// GOAL: A reply that arrived before the waiter was armed is not lost
//
// TEST SCENARIO: Deliver → AwaitNext → callback already invoked before AwaitNext returns
func (s *MailboxTestSuite) TestAwaitNextBufferedMessage() {
	s.mb.Deliver([]byte("R:OK\n"))

	var got []byte
	var gotOK bool
	calls := 0
	s.Require().NoError(s.mb.AwaitNext(time.Second, func(data []byte, ok bool) {
		calls++
		got, gotOK = data, ok
	}))

	s.Equal(1, calls)
	s.True(gotOK)
	s.Equal("R:OK\n", string(got))
	s.Equal(None, s.mb.Active(), "a synchronously served waiter MUST NOT stay armed")
}

// TestAwaitNextTimeout verifies the absent sentinel on timeout and exactly-once resolution.
//
// GOAL: A timed out waiter resolves once with ok=false and a late message goes to the backlog
//
// TEST SCENARIO: AwaitNext(30ms) → wait → deliver late → callback count is 1 → late message buffered
func (s *MailboxTestSuite) TestAwaitNextTimeout() {
	var calls atomic.Int32
	done := make(chan bool, 2)
	s.Require().NoError(s.mb.AwaitNext(30*time.Millisecond, func(data []byte, ok bool) {
		calls.Add(1)
		done <- ok
	}))

	select {
	case ok := <-done:
		s.False(ok, "timeout MUST resolve with the absent sentinel")
	case <-time.After(time.Second):
		s.FailNow("waiter MUST resolve on timeout")
	}

	s.mb.Deliver([]byte("late"))
	time.Sleep(20 * time.Millisecond)

	s.Equal(int32(1), calls.Load(), "waiter MUST resolve exactly once")
	s.Equal(1, s.mb.Len())
}

// TestSecondWaiterRejected verifies only one one-shot waiter can be pending.
func (s *MailboxTestSuite) TestSecondWaiterRejected() {
	s.Require().NoError(s.mb.AwaitNext(time.Second, func([]byte, bool) {}))
	err := s.mb.AwaitNext(time.Second, func([]byte, bool) {})
	s.ErrorIs(err, ErrWaiterBusy)
}

// TestResetResolvesPendingWaiter verifies teardown never leaves a caller waiting.
//
// GOAL: Reset clears every slot and resolves the pending waiter with the absent sentinel
//
// TEST SCENARIO: Arm waiter → Reset → waiter resolved(false) → buffer a message → Reset → backlog empty
func (s *MailboxTestSuite) TestResetResolvesPendingWaiter() {
	var calls int
	var gotOK = true
	s.Require().NoError(s.mb.AwaitNext(time.Minute, func(_ []byte, ok bool) {
		calls++
		gotOK = ok
	}))

	s.mb.Reset()

	s.Equal(1, calls)
	s.False(gotOK)
	s.Equal(None, s.mb.Active())

	s.mb.Deliver([]byte("after reset"))
	s.Equal(1, s.mb.Len())
	s.mb.Reset()
	s.Equal(0, s.mb.Len(), "Reset MUST clear the backlog")
}

func (s *MailboxTestSuite) TestDiscard() {
	s.mb.Deliver([]byte("stale-1"))
	s.mb.Deliver([]byte("stale-2"))

	s.Equal(2, s.mb.Discard())
	s.Equal(0, s.mb.Len())
	s.Equal(0, s.mb.Discard())
}

// TestNextContextCancel verifies the blocking wrapper withdraws its waiter on cancellation.
func (s *MailboxTestSuite) TestNextContextCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	data, ok := s.mb.Next(ctx, time.Minute)
	s.False(ok)
	s.Nil(data)
	s.Equal(None, s.mb.Active(), "cancelled Next MUST NOT leave a waiter armed")
}

func (s *MailboxTestSuite) TestNextReceivesDelivery() {
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.mb.Deliver([]byte("R:H=abc"))
	}()

	data, ok := s.mb.Next(context.Background(), time.Second)
	s.True(ok)
	s.Equal("R:H=abc", string(data))
}

func TestMailbox_DeliverCopiesPayload(t *testing.T) {
	mb := New(4, nil)
	buf := []byte("abc")
	mb.Deliver(buf)
	buf[0] = 'x'

	data, ok := mb.Next(context.Background(), time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "abc", string(data), "buffered payload MUST NOT alias the transport buffer")
}

func TestMailbox_BacklogOverflowDropsOldest(t *testing.T) {
	mb := New(4, nil)
	for i := 0; i < 16; i++ {
		mb.Deliver([]byte(fmt.Sprintf("m%02d", i)))
	}

	assert.LessOrEqual(t, mb.Len(), 4)
	assert.Greater(t, mb.Overwritten(), uint64(0), "overflow MUST be accounted")

	var last string
	mb.StartStream(func(data []byte) { last = string(data) })
	assert.Equal(t, "m15", last, "newest message MUST survive overflow")
}

// TestMailbox_ConcurrentDeliveryAndWaiters checks that every delivered message is consumed
// exactly once by either a waiter or the trailing backlog under concurrent use.
func TestMailbox_ConcurrentDeliveryAndWaiters(t *testing.T) {
	mb := New(256, nil)
	const total = 100

	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			mb.Deliver([]byte{byte(i)})
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for received.Load() < total && time.Now().Before(deadline) {
		if _, ok := mb.Next(context.Background(), 50*time.Millisecond); ok {
			received.Add(1)
		}
	}
	wg.Wait()

	assert.Equal(t, int32(total), received.Load())
	assert.Equal(t, 0, mb.Len())
}
