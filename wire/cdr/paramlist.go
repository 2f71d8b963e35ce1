package cdr

import "fmt"

// ParameterId identifies an inline-QoS or builtin-topic parameter in a
// PL_CDR parameter list (spec.md §6.1, §6.4).
type ParameterId uint16

const (
	PidPad            ParameterId = 0x0000
	PidSentinel       ParameterId = 0x0001
	PidKeyHash        ParameterId = 0x0070
	PidStatusInfo     ParameterId = 0x0071
	PidParticipantGUID ParameterId = 0x0050
	PidEndpointGUID   ParameterId = 0x005a
	PidTopicName      ParameterId = 0x0005
	PidTypeName       ParameterId = 0x0007
	PidUnicastLocator ParameterId = 0x002f
	PidMulticastLocator ParameterId = 0x0030
)

// Parameter is one (id, value) entry of a parameter list.
type Parameter struct {
	Id    ParameterId
	Value []byte
}

// WriteParameterList serializes a parameter list, padding every value to
// a 4-byte boundary and terminating with PID_SENTINEL, per the PL_CDR
// encoding used for SPDP/SEDP builtin-topic samples (spec.md §6.4).
func WriteParameterList(w *Writer, params []Parameter) {
	for _, p := range params {
		w.U16(uint16(p.Id))
		length := len(p.Value)
		padded := (length + 3) &^ 3
		w.U16(uint16(padded))
		w.RawBytes(p.Value)
		for i := length; i < padded; i++ {
			w.U8(0)
		}
	}
	w.U16(uint16(PidSentinel))
	w.U16(0)
}

// ReadParameterList deserializes a parameter list up to (and consuming)
// its terminating PID_SENTINEL.
func ReadParameterList(r *Reader) ([]Parameter, error) {
	var params []Parameter
	for {
		id, err := r.U16()
		if err != nil {
			return nil, fmt.Errorf("cdr: reading parameter id: %w", err)
		}
		length, err := r.U16()
		if err != nil {
			return nil, fmt.Errorf("cdr: reading parameter length: %w", err)
		}
		if ParameterId(id) == PidSentinel {
			return params, nil
		}
		value, err := r.RawBytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("cdr: reading parameter %#x value: %w", id, err)
		}
		params = append(params, Parameter{Id: ParameterId(id), Value: value})
	}
}

// Find returns the first parameter with the given id.
func Find(params []Parameter, id ParameterId) (Parameter, bool) {
	for _, p := range params {
		if p.Id == id {
			return p, true
		}
	}
	return Parameter{}, false
}
