package stp

// segmentEntry is one partitioned chunk of the file being sent, tracked
// per spec.md §3's SenderSegmentTable: "{payload, is_sent}".
type segmentEntry struct {
	seqno   uint16
	payload []byte
	isSent  bool
}

// SegmentTable partitions a source file into <=MSS chunks and maps each
// chunk's starting seqno back to its index, per spec.md §3.
type SegmentTable struct {
	entries  []segmentEntry
	seqnoMap map[uint16]int
}

// NewSegmentTable splits data into MSS-sized chunks, with starting seqnos
// assigned from isn (the first DATA byte's seqno, i.e. ISN+1).
func NewSegmentTable(data []byte, isn uint16) *SegmentTable {
	t := &SegmentTable{seqnoMap: make(map[uint16]int)}
	seqno := isn
	for offset := 0; offset < len(data); offset += MSS {
		end := offset + MSS
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		t.seqnoMap[seqno] = len(t.entries)
		t.entries = append(t.entries, segmentEntry{seqno: seqno, payload: chunk})
		seqno = addSeqno(seqno, uint32(len(chunk)))
	}
	return t
}

// Len returns the number of partitioned segments (N in spec.md §3/§4.4).
func (t *SegmentTable) Len() int { return len(t.entries) }

// Payload returns the payload of the segment at index i.
func (t *SegmentTable) Payload(i int) []byte { return t.entries[i].payload }

// MarkSent flags index i as sent.
func (t *SegmentTable) MarkSent(i int) { t.entries[i].isSent = true }

// IsSent reports whether index i has been sent at least once.
func (t *SegmentTable) IsSent(i int) bool { return t.entries[i].isSent }

// IndexForAck resolves an ACK's seqno to a segment index, per spec.md
// §4.4's consumer step 1: a seqno absent from the map (i.e. the ACK for
// the final byte) resolves to N, "ACKs the final byte".
func (t *SegmentTable) IndexForAck(seqno uint16) int {
	if idx, ok := t.seqnoMap[seqno]; ok {
		return idx
	}
	return len(t.entries)
}

// StartingSeqno returns the seqno that segment index i starts at. Callers
// must only call this for i < Len().
func (t *SegmentTable) StartingSeqno(i int) uint16 {
	return t.entries[i].seqno
}

// Window is the sliding send window expressed as segment-table indices,
// per spec.md §3's SenderWindow and §9's "sidesteps modular-arithmetic
// pitfalls" design note: send_base and end are plain indices into a
// contiguous array, never raw seqnos.
type Window struct {
	SendBase int // oldest unacknowledged index; [0, SendBase) is acked and immutable
	End      int // first index not yet eligible to send
	MaxSegs  int // end - send_base <= MaxSegs, the window size in segments
}

// NewWindow builds a window sized maxWin/MSS segments (integer division,
// per spec.md §9 open question 1 — never float), clamped to the table's
// segment count.
func NewWindow(maxWin, n int) *Window {
	maxSegs := maxWin / MSS
	end := maxSegs
	if end > n {
		end = n
	}
	return &Window{SendBase: 0, End: end, MaxSegs: maxSegs}
}

// Advance slides the window forward to newSendBase (called "window
// advance" in spec.md's glossary): end grows by the same amount send_base
// does, clamped to n.
func (w *Window) Advance(newSendBase, n int) {
	delta := newSendBase - w.SendBase
	w.SendBase = newSendBase
	w.End += delta
	if w.End > n {
		w.End = n
	}
}

// HasRoom reports whether index is within the currently open window.
func (w *Window) HasRoom(index int) bool { return index < w.End }
