package stp

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/stp-proto/gostp/internal/ring"
)

// Msl is the Maximum Segment Lifetime spec.md's glossary fixes at 1 second;
// the receiver's final quiet period is 2*Msl.
const Msl = 1 * time.Second

// Sink receives the in-order byte stream as the receiver drains its
// reordering buffer. cmd/receiver wires this to the output file; tests can
// swap in an in-memory buffer.
type Sink interface {
	Append(p []byte) error
	Close() error
}

// ReceiverConfig mirrors SenderConfig's collaborators, minus a loss
// simulator: spec.md §6's receiver CLI takes no flp/rlp argument, so (per
// the original source, where both probabilities are consumed only on the
// sender side — flp gating the sender's own sends, rlp gating the ACKs it
// receives) the receiver never drops a segment of its own accord. It logs
// every segment it is handed.
type ReceiverConfig struct {
	MaxWin int

	Transport Transport
	Log       *EventLog
	Metrics   *Metrics
	Sink      Sink
}

// receiverState names the phases of spec.md §4.5.
type receiverState int

const (
	stateAwaitSyn receiverState = iota
	stateReceiverEstablished
	stateTimeWait
)

// Receiver drives one transfer from the receiving side: await-SYN ->
// ESTABLISHED -> TIME_WAIT, per spec.md §4.5.
type Receiver struct {
	cfg ReceiverConfig

	state      receiverState
	expctSeqno uint16
	index      int
	ring       *ring.Ring
	recent     *recentAckCache
	timer      *SingleTimer
}

// NewReceiver builds a Receiver ready to run via Run.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	size := cfg.MaxWin / MSS
	return &Receiver{
		cfg:   cfg,
		state: stateAwaitSyn,
		ring:  ring.New(size),
		timer: &SingleTimer{},
	}
}

// Run drives the receiver to completion: waits for SYN, processes DATA
// until FIN, then returns once the 2*MSL quiet period elapses.
func (r *Receiver) Run() error {
	if err := r.awaitSyn(); err != nil {
		return err
	}
	return r.runEstablished()
}

func (r *Receiver) awaitSyn() error {
	for {
		raw, err := r.cfg.Transport.Recv()
		if err != nil {
			if _, fatal := err.(*FatalSocketError); fatal {
				return &FatalSocketError{Err: errTransportClosed}
			}
			continue
		}
		seg, decErr := Decode(raw)
		if decErr != nil {
			log.WithError(decErr).Debug("receiver: dropping malformed segment")
			continue
		}
		r.cfg.Log.Received(seg.Type, seg.Seqno, len(seg.Payload))
		r.cfg.Metrics.received(seg.Type)
		if seg.Type != SegSyn {
			// First received segment must be SYN; anything else before
			// handshake completion is ignored.
			continue
		}
		r.expctSeqno = addSeqno(seg.Seqno, 1)
		r.index = 0
		r.recent = newRecentAckCache(2 * r.ring.Size())
		r.sendAck(r.expctSeqno)
		r.state = stateReceiverEstablished
		return nil
	}
}

func (r *Receiver) sendAck(seqno uint16) {
	r.cfg.Log.Sent(SegAck, seqno, 0)
	r.cfg.Metrics.sent(SegAck)
	if err := r.cfg.Transport.Send(Encode(SegAck, seqno, nil)); err != nil {
		log.WithError(err).Error("receiver: send failed")
	}
}

func (r *Receiver) runEstablished() error {
	for {
		raw, err := r.cfg.Transport.Recv()
		if err != nil {
			if _, fatal := err.(*FatalSocketError); fatal {
				return &FatalSocketError{Err: errTransportClosed}
			}
			continue
		}
		seg, decErr := Decode(raw)
		if decErr != nil {
			log.WithError(decErr).Debug("receiver: dropping malformed segment")
			continue
		}
		r.cfg.Log.Received(seg.Type, seg.Seqno, len(seg.Payload))
		r.cfg.Metrics.received(seg.Type)

		switch seg.Type {
		case SegSyn:
			// Retransmit the handshake ACK; handles a lost initial ACK.
			r.sendAck(r.expctSeqno)
		case SegData:
			if err := r.handleData(seg); err != nil {
				return err
			}
		case SegFin:
			return r.handleFin(seg)
		default:
			// Stray ACKs addressed to the receiver are not meaningful;
			// ignore.
		}
	}
}

// handleData implements spec.md §4.5's DATA branch.
func (r *Receiver) handleData(seg Segment) error {
	if seg.Seqno == r.expctSeqno {
		if !r.ring.Empty(r.index) {
			return &FatalSocketError{Err: &ProtocolViolation{Reason: "in-order slot already occupied"}}
		}
		r.ring.Put(r.index, seg.Payload)
		if err := r.drain(); err != nil {
			return err
		}
		r.sendAck(r.expctSeqno)
		return nil
	}

	if !r.recent.Contains(seg.Seqno) {
		d := int(diffSeqno(seg.Seqno, r.expctSeqno))
		if d%MSS != 0 {
			return &FatalSocketError{Err: &ProtocolViolation{
				Reason: "out-of-order segment not aligned to MSS",
			}}
		}
		slots := d / MSS
		if slots < 0 || slots >= r.ring.Size() {
			return &FatalSocketError{Err: &ProtocolViolation{
				Reason: "out-of-order segment outside window",
			}}
		}
		pos := r.ring.Offset(r.index, slots)
		if !r.ring.Empty(pos) {
			return &FatalSocketError{Err: &ProtocolViolation{Reason: "ring slot already occupied"}}
		}
		r.ring.Put(pos, seg.Payload)
	}
	// Already-delivered duplicate, or freshly buffered out-of-order
	// segment: cumulative ACK is unchanged either way (spec.md §9 open
	// question 2).
	r.sendAck(r.expctSeqno)
	return nil
}

// drain writes out every contiguous in-order segment starting at the
// current ring head, per spec.md §4.5: "while slot at index non-empty,
// write its bytes... advance expct_seqno... clear slot."
func (r *Receiver) drain() error {
	for !r.ring.Empty(r.index) {
		payload := r.ring.Take(r.index)
		if err := r.cfg.Sink.Append(payload); err != nil {
			return &FatalSocketError{Err: err}
		}
		r.recent.Add(r.expctSeqno)
		r.expctSeqno = addSeqno(r.expctSeqno, uint32(len(payload)))
		r.index = r.ring.Offset(r.index, 1)
	}
	return nil
}

// handleFin implements spec.md §4.5's FIN branch: ACK it, then wait out
// 2*MSL before closing.
func (r *Receiver) handleFin(seg Segment) error {
	r.sendAck(addSeqno(seg.Seqno, 1))
	r.state = stateTimeWait

	done := make(chan struct{})
	r.timer.Arm(2*Msl, func() { close(done) })

	// Any segment arriving during the quiet period is ignored, per
	// spec.md §4.5; a background reader keeps draining the socket so a
	// retransmitted FIN or stray DATA doesn't wedge the transport, and
	// exits on its own once Close() unblocks its Recv.
	arrived := make(chan struct{})
	go func() {
		for {
			if _, err := r.cfg.Transport.Recv(); err != nil {
				return
			}
			select {
			case arrived <- struct{}{}:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			if err := r.cfg.Sink.Close(); err != nil {
				return &FatalSocketError{Err: err}
			}
			return r.cfg.Transport.Close()
		case <-arrived:
		}
	}
}
