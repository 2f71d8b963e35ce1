package rtps

import (
	"fmt"

	"github.com/godds/core/wire/cdr"
)

func entityIdEndian(w *cdr.Writer, id EntityId) {
	w.RawBytes(id[:])
}

func readEntityId(r *cdr.Reader) (EntityId, error) {
	b, err := r.RawBytes(4)
	if err != nil {
		return EntityId{}, err
	}
	var id EntityId
	copy(id[:], b)
	return id, nil
}

func seqNumEncode(w *cdr.Writer, sn SequenceNumber) {
	w.I32(int32(int64(sn) >> 32))
	w.U32(uint32(int64(sn) & 0xffffffff))
}

func seqNumDecode(r *cdr.Reader) (SequenceNumber, error) {
	hi, err := r.I32()
	if err != nil {
		return 0, err
	}
	lo, err := r.U32()
	if err != nil {
		return 0, err
	}
	return SequenceNumber(int64(hi)<<32 | int64(lo)), nil
}

func sequenceNumberSetEncode(w *cdr.Writer, s SequenceNumberSet) {
	seqNumEncode(w, s.Base)
	w.U32(s.NumBits)
	for _, word := range s.Bitmap {
		w.U32(word)
	}
}

func sequenceNumberSetDecode(r *cdr.Reader) (SequenceNumberSet, error) {
	base, err := seqNumDecode(r)
	if err != nil {
		return SequenceNumberSet{}, err
	}
	numBits, err := r.U32()
	if err != nil {
		return SequenceNumberSet{}, err
	}
	numWords := (numBits + 31) / 32
	bitmap := make([]uint32, numWords)
	for i := range bitmap {
		v, err := r.U32()
		if err != nil {
			return SequenceNumberSet{}, err
		}
		bitmap[i] = v
	}
	return SequenceNumberSet{Base: base, NumBits: numBits, Bitmap: bitmap}, nil
}

// EncodeHeartbeat serializes a Heartbeat submessage body (without its
// 4-byte submessage header).
func EncodeHeartbeat(hb Heartbeat, little bool) []byte {
	w := cdr.NewWriter(endianOf(little))
	entityIdEndian(w, hb.ReaderId)
	entityIdEndian(w, hb.WriterId)
	seqNumEncode(w, hb.FirstSN)
	seqNumEncode(w, hb.LastSN)
	w.I32(hb.Count)
	return w.Bytes()
}

// DecodeHeartbeat parses a Heartbeat submessage body given the flags
// from its submessage header.
func DecodeHeartbeat(buf []byte, flags SubmessageFlags) (Heartbeat, error) {
	r := cdr.NewReader(buf, endianOf(flags.LittleEndian()))
	hb := Heartbeat{
		Final:      flags&(1<<1) != 0,
		Liveliness: flags&(1<<2) != 0,
	}
	var err error
	if hb.ReaderId, err = readEntityId(r); err != nil {
		return hb, err
	}
	if hb.WriterId, err = readEntityId(r); err != nil {
		return hb, err
	}
	if hb.FirstSN, err = seqNumDecode(r); err != nil {
		return hb, err
	}
	if hb.LastSN, err = seqNumDecode(r); err != nil {
		return hb, err
	}
	if hb.Count, err = r.I32(); err != nil {
		return hb, err
	}
	return hb, nil
}

// EncodeAckNack serializes an AckNack submessage body.
func EncodeAckNack(an AckNack, little bool) []byte {
	w := cdr.NewWriter(endianOf(little))
	entityIdEndian(w, an.ReaderId)
	entityIdEndian(w, an.WriterId)
	sequenceNumberSetEncode(w, an.ReaderSNState)
	w.I32(an.Count)
	return w.Bytes()
}

// DecodeAckNack parses an AckNack submessage body.
func DecodeAckNack(buf []byte, flags SubmessageFlags) (AckNack, error) {
	r := cdr.NewReader(buf, endianOf(flags.LittleEndian()))
	an := AckNack{Final: flags&(1<<1) != 0}
	var err error
	if an.ReaderId, err = readEntityId(r); err != nil {
		return an, err
	}
	if an.WriterId, err = readEntityId(r); err != nil {
		return an, err
	}
	if an.ReaderSNState, err = sequenceNumberSetDecode(r); err != nil {
		return an, err
	}
	if an.Count, err = r.I32(); err != nil {
		return an, err
	}
	return an, nil
}

// EncodeGap serializes a Gap submessage body.
func EncodeGap(g Gap, little bool) []byte {
	w := cdr.NewWriter(endianOf(little))
	entityIdEndian(w, g.ReaderId)
	entityIdEndian(w, g.WriterId)
	seqNumEncode(w, g.GapStart)
	sequenceNumberSetEncode(w, g.GapList)
	return w.Bytes()
}

// DecodeGap parses a Gap submessage body.
func DecodeGap(buf []byte, flags SubmessageFlags) (Gap, error) {
	r := cdr.NewReader(buf, endianOf(flags.LittleEndian()))
	var g Gap
	var err error
	if g.ReaderId, err = readEntityId(r); err != nil {
		return g, err
	}
	if g.WriterId, err = readEntityId(r); err != nil {
		return g, err
	}
	if g.GapStart, err = seqNumDecode(r); err != nil {
		return g, err
	}
	if g.GapList, err = sequenceNumberSetDecode(r); err != nil {
		return g, err
	}
	return g, nil
}

// EncodeData serializes a Data submessage body. InlineQos, when present,
// must already be PL_CDR-encoded parameter-list bytes (see
// wire/cdr.WriteParameterList).
func EncodeData(d Data, little bool) []byte {
	w := cdr.NewWriter(endianOf(little))
	w.U16(0) // extraFlags
	octetsToInlineQos := uint16(16) // counted from after this field: readerId, writerId and writerSN
	w.U16(octetsToInlineQos)
	entityIdEndian(w, d.ReaderId)
	entityIdEndian(w, d.WriterId)
	seqNumEncode(w, d.WriterSN)
	if d.InlineQosPresent {
		w.RawBytes(d.InlineQos)
	}
	w.RawBytes(d.SerializedPayload)
	return w.Bytes()
}

// DecodeData parses a Data submessage body. flags bit 1 is
// DATA_FLAG_INLINE_QOS, bit 2 is DATA_FLAG_DATA (payload present), bit 3
// is DATA_FLAG_KEY (payload is a serialized key, not a full sample).
func DecodeData(buf []byte, flags SubmessageFlags) (Data, error) {
	const (
		flagInlineQos = 1 << 1
		flagData      = 1 << 2
	)
	r := cdr.NewReader(buf, endianOf(flags.LittleEndian()))
	var d Data
	if _, err := r.U16(); err != nil {
		return d, err
	}
	octetsToInlineQos, err := r.U16()
	_ = octetsToInlineQos
	if err != nil {
		return d, err
	}
	if d.ReaderId, err = readEntityId(r); err != nil {
		return d, err
	}
	if d.WriterId, err = readEntityId(r); err != nil {
		return d, err
	}
	if d.WriterSN, err = seqNumDecode(r); err != nil {
		return d, err
	}
	if flags&flagInlineQos != 0 {
		d.InlineQosPresent = true
		params, err := cdr.ReadParameterList(r)
		if err != nil {
			return d, fmt.Errorf("rtps: decoding inline qos: %w", err)
		}
		if p, ok := cdr.Find(params, cdr.PidKeyHash); ok && len(p.Value) == 16 {
			var kh EntityKey
			copy(kh[:], p.Value)
			d.KeyHash = &kh
		}
		if p, ok := cdr.Find(params, cdr.PidStatusInfo); ok && len(p.Value) >= 4 {
			flags := p.Value[3]
			d.StatusInfo = &StatusInfo{
				Disposed:     flags&0x1 != 0,
				Unregistered: flags&0x2 != 0,
			}
		}
	}
	if flags&flagData != 0 {
		d.SerializedPayload = buf[r.Offset():]
	}
	return d, nil
}

func endianOf(little bool) cdr.Endian {
	if little {
		return cdr.LittleEndian
	}
	return cdr.BigEndian
}
