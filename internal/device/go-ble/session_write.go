package goble

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/keylink/internal/device"
	"github.com/srg/keylink/internal/groutine"
)

func (s *Session) onWrite(cmd writeCmd) {
	if s.write != nil {
		cmd.reply <- device.ErrWriteInFlight
		return
	}

	s.write = &pendingWrite{data: cmd.data, opts: cmd.opts, reply: cmd.reply}

	switch st := s.State(); {
	case st == Ready:
		s.startWrite()
	case st.connecting():
		// picked up by becomeReady
	default:
		s.logger.WithFields(logrus.Fields{
			"address": s.address,
			"state":   st,
		}).Debug("Write requested without a link, connecting first")
		s.startConnect()
	}
}

func (s *Session) startWrite() {
	w := s.write
	w.started = true

	noRsp, err := selectWriteMode(s.writeChar.Property, w.opts.ForceNoResponse)
	if err != nil {
		s.finishWrite(err)
		return
	}

	data := w.data
	if s.opts.AppendNewline != nil && s.opts.AppendNewline() {
		data = append(data, '\n')
	}

	s.writeSeq++
	w.seq = s.writeSeq
	s.setState(Writing)

	if !noRsp {
		seq := w.seq
		w.timer = time.AfterFunc(s.opts.WriteTimeout, func() {
			s.post(writeExpired{seq: seq})
		})
	}

	client, char, gen, seq := s.client, s.writeChar, s.gen, w.seq
	chunkSize := s.MTU() - attHeaderSize
	delay := s.opts.ChunkDelay

	s.logger.WithFields(logrus.Fields{
		"address":      s.address,
		"bytes":        len(data),
		"chunk_size":   chunkSize,
		"acknowledged": !noRsp,
	}).Debug("Writing characteristic")

	groutine.Go(context.Background(), "session-write", func(context.Context) {
		err := writeChunks(client, char, data, chunkSize, delay, noRsp)
		s.post(writeResult{gen: gen, seq: seq, err: err})
	})
}

// writeChunks splits data into MTU-sized pieces and writes them in order.
func writeChunks(client Client, char *ble.Characteristic, data []byte, chunkSize int, delay time.Duration, noRsp bool) error {
	if chunkSize <= 0 {
		chunkSize = DefaultBLEWriteChunkSize
	}
	for offset := 0; offset < len(data) || offset == 0; offset += chunkSize {
		end := min(offset+chunkSize, len(data))
		if err := client.WriteCharacteristic(char, data[offset:end], noRsp); err != nil {
			return err
		}
		if end >= len(data) {
			return nil
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}

// selectWriteMode prefers acknowledged writes unless the caller forces an
// unacknowledged one and the characteristic supports it.
func selectWriteMode(prop ble.Property, forceNoResponse bool) (noRsp bool, err error) {
	canAck := prop&ble.CharWrite != 0
	canNoRsp := prop&ble.CharWriteNR != 0

	switch {
	case forceNoResponse && canNoRsp:
		return true, nil
	case canAck:
		return false, nil
	case canNoRsp:
		return true, nil
	default:
		return false, fmt.Errorf("%w: characteristic is not writable", device.ErrUnsupported)
	}
}

func (s *Session) onWriteResult(r writeResult) {
	if r.gen != s.gen || s.write == nil || s.write.seq != r.seq {
		s.logger.WithField("seq", r.seq).Debug("Discarding late write result")
		return
	}
	if r.err != nil {
		err := NormalizeError(r.err)
		s.logger.WithFields(logrus.Fields{
			"address": s.address,
			"error":   err,
		}).Error("Characteristic write failed")
		s.finishWrite(&device.WriteFailedError{Err: err})
		return
	}
	s.finishWrite(nil)
}

func (s *Session) onWriteExpired(e writeExpired) {
	if s.write == nil || s.write.seq != e.seq {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"address": s.address,
		"timeout": s.opts.WriteTimeout,
	}).Warn("Timeout while writing characteristic")
	s.finishWrite(device.ErrWriteTimeout)
}

func (s *Session) finishWrite(err error) {
	w := s.write
	s.write = nil
	if w.timer != nil {
		w.timer.Stop()
	}

	if s.client != nil {
		s.setState(Ready)
		if !s.opts.Persistent {
			s.logger.WithField("address", s.address).Debug("Single-shot mode, releasing link after write")
			s.setState(Disconnected)
			s.teardown(device.ErrNotConnected)
		}
	}
	w.reply <- err
}

// failWrite resolves the pending write, if any, with err.
func (s *Session) failWrite(err error) {
	w := s.write
	if w == nil {
		return
	}
	s.write = nil
	if w.timer != nil {
		w.timer.Stop()
	}
	w.reply <- err
}
