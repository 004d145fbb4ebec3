package stp

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var errTransportClosed = errors.New("stp: transport closed")

// SenderConfig carries the parameters spec.md §6 takes from the CLI, plus
// the collaborators spec.md §9 says must stay out of the state machine
// (Transport, loss simulator, event log). The event log owns its own Clock.
type SenderConfig struct {
	MaxWin int
	Rto    time.Duration
	Flp    float64
	Rlp    float64

	Transport Transport
	Loss      *LossSimulator
	Log       *EventLog
	Metrics   *Metrics
	Progress  ProgressReporter

	// Isn, when non-nil, pins the initial sequence number (tests only).
	// Production callers leave it nil so Sender picks one uniformly at
	// random, per spec.md §4.4.
	Isn *uint16
}

// ProgressReporter is notified as bytes are cumulatively acknowledged.
// cmd/sender wires this to a terminal progress bar; tests leave it nil.
type ProgressReporter interface {
	Add(n int)
	Close()
}

// Sender drives one transfer from the sending side: SYN_SENT ->
// ESTABLISHED -> CLOSING, per spec.md §4.4.
type Sender struct {
	cfg SenderConfig

	mu      sync.Mutex
	timer   *SingleTimer
	table   *SegmentTable
	window  *Window
	dupAcks int
	isn     uint16
	seqno   uint16 // first DATA seqno (ISN+1), set on leaving SYN_SENT
	estDone chan struct{}
}

// NewSender builds a Sender ready to run against data via Run.
func NewSender(cfg SenderConfig) *Sender {
	isn := uint16(rand.Intn(MaxSeqno))
	if cfg.Isn != nil {
		isn = *cfg.Isn
	}
	return &Sender{
		cfg:     cfg,
		timer:   &SingleTimer{},
		isn:     isn,
		estDone: make(chan struct{}),
	}
}

// transmit encodes and sends one segment, subject to the forward loss
// simulator, logging either the send or the drop (spec.md §4.2).
func (s *Sender) transmit(segtype SegType, seqno uint16, payload []byte) {
	if s.cfg.Loss.MaybeDrop(s.cfg.Flp) {
		s.cfg.Log.Dropped(segtype, seqno, len(payload))
		s.cfg.Metrics.dropped("send", segtype)
		return
	}
	s.cfg.Log.Sent(segtype, seqno, len(payload))
	s.cfg.Metrics.sent(segtype)
	if err := s.cfg.Transport.Send(Encode(segtype, seqno, payload)); err != nil {
		log.WithError(err).Error("sender: send failed")
	}
}

// recv blocks for the next datagram, applying the receive-side loss
// simulator. ok is false if the datagram was dropped or malformed
// (recoverable: caller should keep looping); err is errTransportClosed when
// the transport has been closed out from under the caller, and otherwise
// non-nil only for a transient socket error.
func (s *Sender) recv() (Segment, bool, error) {
	raw, err := s.cfg.Transport.Recv()
	if err != nil {
		if _, fatal := err.(*FatalSocketError); fatal {
			return Segment{}, false, errTransportClosed
		}
		return Segment{}, false, err
	}
	seg, decErr := Decode(raw)
	if decErr != nil {
		log.WithError(decErr).Debug("sender: dropping malformed segment")
		return Segment{}, false, nil
	}
	if s.cfg.Loss.MaybeDrop(s.cfg.Rlp) {
		s.cfg.Log.Dropped(seg.Type, seg.Seqno, len(seg.Payload))
		s.cfg.Metrics.dropped("recv", seg.Type)
		return Segment{}, false, nil
	}
	s.cfg.Log.Received(seg.Type, seg.Seqno, len(seg.Payload))
	s.cfg.Metrics.received(seg.Type)
	return seg, true, nil
}

// Run drives the sender through SYN_SENT, ESTABLISHED, and CLOSING to
// completion for the given file contents.
func (s *Sender) Run(data []byte) error {
	if err := s.runSynSent(); err != nil {
		return err
	}
	s.table = NewSegmentTable(data, s.seqno)
	s.window = NewWindow(s.cfg.MaxWin, s.table.Len())
	if s.table.Len() > 0 {
		s.runEstablished()
	}
	err := s.runClosing()
	if s.cfg.Progress != nil {
		s.cfg.Progress.Close()
	}
	return err
}

func (s *Sender) runSynSent() error {
	fire := func() { s.retransmitSyn() }
	s.timer.Arm(s.cfg.Rto, fire)
	s.transmit(SegSyn, s.isn, nil)

	for {
		seg, ok, err := s.recv()
		if err == errTransportClosed {
			return &FatalSocketError{Err: err}
		}
		if err != nil || !ok {
			continue // TransientSocketError, drop, or malformed segment: retry
		}
		if seg.Type == SegAck && seg.Seqno == addSeqno(s.isn, 1) {
			s.timer.Cancel()
			s.seqno = addSeqno(s.isn, 1)
			return nil
		}
		// Any other segment while SYN_SENT is ignored; the timer keeps
		// retransmitting SYN, unbounded, until the right ACK arrives.
	}
}

func (s *Sender) retransmitSyn() {
	s.timer.Arm(s.cfg.Rto, s.retransmitSyn)
	s.transmit(SegSyn, s.isn, nil)
}

// runEstablished runs the producer (send) and consumer (ACK) loops
// concurrently, per spec.md §4.4's ESTABLISHED contract, sharing
// (window, timer, dupAcks) under s.mu.
func (s *Sender) runEstablished() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.produce()
	}()
	go func() {
		defer wg.Done()
		s.consume()
	}()
	wg.Wait()
}

// produce is the producer activity: while index < N, send any segment the
// window has room for, then busy-wait for the consumer to slide the
// window, exactly as spec.md describes.
func (s *Sender) produce() {
	n := s.table.Len()
	for index := 0; index < n; {
		s.mu.Lock()
		room := s.window.HasRoom(index)
		if room {
			s.table.MarkSent(index)
		}
		s.mu.Unlock()
		if !room {
			select {
			case <-s.estDone:
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}
		payload := s.table.Payload(index)
		startSeqno := s.table.StartingSeqno(index)
		s.sendData(startSeqno, payload)
		index++
	}
}

// sendData transmits a DATA segment and arms the timer if none is armed,
// per spec.md §4.4's send_data.
func (s *Sender) sendData(seqno uint16, payload []byte) {
	s.mu.Lock()
	if !s.timer.Armed() {
		s.timer.Arm(s.cfg.Rto, func() { s.onTimerFire(seqno) })
	}
	s.mu.Unlock()
	s.transmit(SegData, seqno, payload)
}

// onTimerFire is the timer callback: retransmit the oldest unacked
// segment, reset dupAcks, and clear the timer slot so the next send (or
// the consumer, on the next advance) rearms it.
func (s *Sender) onTimerFire(seqno uint16) {
	s.mu.Lock()
	s.dupAcks = 0
	idx, ok := s.table.seqnoMap[seqno]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.cfg.Metrics.retransmit("timeout")
	s.transmit(SegData, seqno, s.table.Payload(idx))
}

// consume is the consumer activity: read ACKs and advance the window, per
// spec.md §4.4's numbered steps.
func (s *Sender) consume() {
	n := s.table.Len()
	for {
		seg, ok, err := s.recv()
		if err == errTransportClosed {
			return
		}
		if err != nil || !ok {
			continue
		}
		if seg.Type != SegAck {
			continue
		}
		ackedIndex := s.table.IndexForAck(seg.Seqno)

		s.mu.Lock()
		switch {
		case ackedIndex > s.window.SendBase:
			oldBase := s.window.SendBase
			s.timer.Cancel()
			lastEligible := s.window.End
			if n-1 < lastEligible {
				lastEligible = n - 1
			}
			if ackedIndex <= lastEligible && s.table.IsSent(ackedIndex) {
				newOldest := s.table.StartingSeqno(ackedIndex)
				s.timer.Arm(s.cfg.Rto, func() { s.onTimerFire(newOldest) })
			}
			s.window.Advance(ackedIndex, n)
			s.dupAcks = 0
			acked := 0
			for i := oldBase; i < ackedIndex; i++ {
				acked += len(s.table.Payload(i))
			}
			s.mu.Unlock()
			if s.cfg.Progress != nil && acked > 0 {
				s.cfg.Progress.Add(acked)
			}
			if ackedIndex == n {
				close(s.estDone)
				return
			}

		case ackedIndex == s.window.SendBase:
			s.dupAcks++
			fastRetransmit := s.dupAcks == 3
			if fastRetransmit {
				s.dupAcks = 0
			}
			s.mu.Unlock()
			if fastRetransmit && ackedIndex < n {
				s.cfg.Metrics.retransmit("fast")
				s.transmit(SegData, seg.Seqno, s.table.Payload(ackedIndex))
			}

		default: // ackedIndex < send_base: stale, already logged, ignored
			s.mu.Unlock()
		}
	}
}

func (s *Sender) runClosing() error {
	finSeqno := s.finalSeqno()
	expectAck := addSeqno(finSeqno, 1)

	s.timer.Arm(s.cfg.Rto, func() { s.retransmitFin(finSeqno) })
	s.transmit(SegFin, finSeqno, nil)

	for {
		seg, ok, err := s.recv()
		if err == errTransportClosed {
			return &FatalSocketError{Err: err}
		}
		if err != nil || !ok {
			continue
		}
		if seg.Type == SegAck && seg.Seqno == expectAck {
			s.timer.Cancel()
			return s.cfg.Transport.Close()
		}
		// Late ACKs for prior DATA are logged (above) and discarded.
	}
}

func (s *Sender) retransmitFin(finSeqno uint16) {
	s.timer.Arm(s.cfg.Rto, func() { s.retransmitFin(finSeqno) })
	s.transmit(SegFin, finSeqno, nil)
}

// finalSeqno is ISN+1 + total bytes sent, per spec.md §4.4's CLOSING entry
// condition.
func (s *Sender) finalSeqno() uint16 {
	total := 0
	for i := 0; i < s.table.Len(); i++ {
		total += len(s.table.Payload(i))
	}
	return addSeqno(addSeqno(s.isn, 1), uint32(total))
}
