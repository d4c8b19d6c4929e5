//go:build test

package protocol_test

import (
	"context"
	"testing"
	"time"

	goble "github.com/srg/keylink/internal/device/go-ble"
	"github.com/srg/keylink/internal/protocol"
	"github.com/srg/keylink/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// ProtocolTestSuite runs the handshake and exchanges over a real session against
// the emulated dongle firmware.
type ProtocolTestSuite struct {
	testutils.MockBLEPeripheralSuite
	session *goble.Session
	prefs   *testutils.MemoryPreferences
}

func (s *ProtocolTestSuite) SetupTest() {
	s.MockBLEPeripheralSuite.SetupTest()
	s.prefs = testutils.NewMemoryPreferences(testutils.DongleAddress)
	opts := s.SessionOptions()
	opts.AppendNewline = s.prefs.AppendNewline
	s.session = goble.NewSession(testutils.DongleAddress, s.Dialer, opts, s.Logger)
}

func (s *ProtocolTestSuite) TearDownTest() {
	s.session.Close()
	s.MockBLEPeripheralSuite.TearDownTest()
}

func (s *ProtocolTestSuite) handshake() *protocol.Handshaker {
	return protocol.NewHandshaker(protocol.HandshakeOptions{
		Timeout: 300 * time.Millisecond,
		Retry:   protocol.RetryPolicy{Retries: 2},
	}, s.prefs, s.Logger)
}

// ready completes the handshake so the banner is consumed before any exchange.
func (s *ProtocolTestSuite) ready() {
	_, err := s.handshake().Run(context.Background(), s.session)
	s.Require().NoError(err)
}

func (s *ProtocolTestSuite) exchanger() *protocol.Exchanger {
	return protocol.NewExchanger(protocol.ExchangeOptions{ReplyTimeout: 500 * time.Millisecond}, s.Logger)
}

// TestHandshakePersistsLayout verifies the banner token reaches the preference store.
//
// GOAL: The handshake completes over a real session and persists the announced layout.
//
// TEST SCENARIO: Connect to the dongle → banner arrives → token parsed → preference written
func (s *ProtocolTestSuite) TestHandshakePersistsLayout() {
	token, err := s.handshake().Run(context.Background(), s.session)
	s.Require().NoError(err)
	s.Equal("UK_WINLIN", token)
	s.Equal("UK_WINLIN", s.prefs.KeyboardLayout(), "layout MUST be persisted")
	s.Equal(1, s.prefs.LayoutWrites())
	s.Equal(goble.Ready, s.session.State())
}

// TestVerifiedSendRoundTrip verifies a payload is confirmed by its digest.
//
// GOAL: Verified send over a ready session succeeds when the dongle echoes the MD5.
//
// TEST SCENARIO: Handshake → S:1234 written → R:H=<MD5> received → success
func (s *ProtocolTestSuite) TestVerifiedSendRoundTrip() {
	s.ready()

	s.Require().NoError(s.exchanger().SendVerified(context.Background(), s.session, []byte("1234")))
	s.Equal([]string{"S:1234"}, s.Firmware.Lines())
}

// TestVerifiedSendWithNewline verifies the newline preference does not change the digest.
func (s *ProtocolTestSuite) TestVerifiedSendWithNewline() {
	s.ready()
	s.Require().NoError(s.prefs.SetAppendNewline(true))

	err := s.exchanger().SendVerified(context.Background(), s.session, []byte("hunter2"))
	s.Require().NoError(err)
	testutils.NewTranscriptAsserter(s.T()).Assert(s.Peripheral.Written(), "S:hunter2\n")
}

// TestVerifiedSendLongPayload verifies a payload spanning several chunks is reassembled.
func (s *ProtocolTestSuite) TestVerifiedSendLongPayload() {
	payload := make([]byte, 600)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}
	s.ready()
	s.Require().NoError(s.prefs.SetAppendNewline(true))

	s.Require().NoError(s.exchanger().SendVerified(context.Background(), s.session, payload))
	written := s.Peripheral.Written()
	s.Greater(len(written), 1, "payload MUST be split into several chunks")
	testutils.NewTranscriptAsserter(s.T()).Assert(written, "S:", string(payload), "\n")
}

// TestVerifiedSendHashMismatch verifies a wrong digest fails the send.
func (s *ProtocolTestSuite) TestVerifiedSendHashMismatch() {
	s.ready()
	s.Firmware.HashOverride = "00000000000000000000000000000000"

	err := s.exchanger().SendVerified(context.Background(), s.session, []byte("1234"))
	s.ErrorIs(err, protocol.ErrHashMismatch)
	s.Equal(goble.Ready, s.session.State(), "a rejected digest MUST NOT tear the link down")
}

// TestSendLayoutCommand verifies the layout command is acknowledged.
func (s *ProtocolTestSuite) TestSendLayoutCommand() {
	s.ready()
	reply, err := s.exchanger().SendCommand(context.Background(), s.session, protocol.BuildLayoutCommand("DE_MAC"))
	s.Require().NoError(err)
	s.Equal("R:OK", reply)
	s.Equal("DE_MAC", s.Firmware.Layout())
}

// TestSendCommandNoReply verifies a silent dongle yields "No reply".
func (s *ProtocolTestSuite) TestSendCommandNoReply() {
	s.ready()
	s.Firmware.Silent = true

	_, err := s.exchanger().SendCommand(context.Background(), s.session, "C:PING\n")
	s.ErrorIs(err, protocol.ErrNoReply)
	s.EqualError(err, "No reply")
}

// TestSendCommandRejected verifies an error reply is surfaced verbatim.
func (s *ProtocolTestSuite) TestSendCommandRejected() {
	s.ready()
	s.Firmware.Replies["C:PING"] = "R:ERR busy"

	_, err := s.exchanger().SendCommand(context.Background(), s.session, "C:PING\n")
	s.EqualError(err, "Reply: R:ERR busy")
}

func TestProtocolTestSuite(t *testing.T) {
	suite.Run(t, new(ProtocolTestSuite))
}

// HandshakeRetrySuite covers a dongle whose banner never completes.
type HandshakeRetrySuite struct {
	testutils.MockBLEPeripheralSuite
}

func (s *HandshakeRetrySuite) SetupTest() {
	s.WithPeripheral().WithBanner("CONNECTED=LAYOUT_")
	s.MockBLEPeripheralSuite.SetupTest()
}

// TestHandshakeExhaustsRetries verifies bounded reconnects end in "no handshake".
//
// GOAL: An incomplete banner on every attempt fails after 1 + retries connects.
//
// TEST SCENARIO: Banner truncated → deadline → reconnect ×2 → ErrNoHandshake
func (s *HandshakeRetrySuite) TestHandshakeExhaustsRetries() {
	session := goble.NewSession(testutils.DongleAddress, s.Dialer, s.SessionOptions(), s.Logger)
	defer session.Close()
	prefs := testutils.NewMemoryPreferences(testutils.DongleAddress)

	h := protocol.NewHandshaker(protocol.HandshakeOptions{
		Timeout: 100 * time.Millisecond,
		Retry:   protocol.RetryPolicy{Retries: 2},
	}, prefs, s.Logger)

	_, err := h.Run(context.Background(), session)
	s.ErrorIs(err, protocol.ErrNoHandshake)
	s.Equal(0, prefs.LayoutWrites(), "nothing MUST be persisted without a banner")
	s.Peripheral.Device.AssertNumberOfCalls(s.T(), "Dial", 3)
}

func TestHandshakeRetrySuite(t *testing.T) {
	suite.Run(t, new(HandshakeRetrySuite))
}
