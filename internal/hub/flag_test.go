package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlag_SubscribeReceivesCurrentValue(t *testing.T) {
	f := NewFlag()
	f.Set(true)

	ch, cancel := f.Subscribe()
	defer cancel()

	assert.True(t, <-ch, "subscriber MUST receive the current value first")
}

func TestFlag_LatestValueWins(t *testing.T) {
	f := NewFlag()
	ch, cancel := f.Subscribe()
	defer cancel()

	f.Set(true)
	f.Set(false)
	f.Set(true)

	select {
	case v := <-ch:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("no value published")
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %v", v)
	default:
	}
}

func TestFlag_SetSameValueDoesNotNotify(t *testing.T) {
	f := NewFlag()
	ch, cancel := f.Subscribe()
	defer cancel()
	<-ch

	f.Set(false)

	select {
	case v := <-ch:
		t.Fatalf("unexpected notification %v", v)
	default:
	}
}

func TestFlag_CancelClosesChannel(t *testing.T) {
	f := NewFlag()
	ch, cancel := f.Subscribe()
	<-ch
	assert.Equal(t, 1, f.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, f.Subscribers(), "cancel MUST remove the subscription")
	f.Set(true)

	_, open := <-ch
	require.False(t, open, "cancelled subscription MUST be closed")
	assert.True(t, f.Get())
}

func TestOutcome(t *testing.T) {
	ok, msg := Outcome(nil)
	assert.True(t, ok)
	assert.Empty(t, msg)

	ok, msg = Outcome(ErrNoDevice)
	assert.False(t, ok)
	assert.Equal(t, "No device selected", msg)
}
