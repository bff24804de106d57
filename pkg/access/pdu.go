package access

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/simple-beacon/beacon-go/pkg/model"
)

// Size limits.
const (
	// OpcodeLength is the encoded size of a vendor opcode.
	OpcodeLength = 3

	// MaxMessageSize bounds opcode plus parameters of one access message.
	MaxMessageSize = 380

	// HeaderSize is the fixed PDU header: src, dst, ttl, app key index.
	HeaderSize = 7

	// MaxPDUSize is the largest PDU a bearer has to carry.
	MaxPDUSize = HeaderSize + MaxMessageSize
)

// PDU errors.
var (
	ErrPDUTooShort     = errors.New("pdu too short")
	ErrPayloadTooLarge = errors.New("access payload too large")
	ErrNotVendorOpcode = errors.New("not a vendor opcode")
)

// Opcode is a 3-octet vendor opcode.
type Opcode struct {
	Code      uint8
	CompanyID uint16
}

// IsVendor reports whether the code carries the 0b11 vendor prefix.
func (o Opcode) IsVendor() bool {
	return o.Code&0xC0 == 0xC0
}

// String returns "0xCC/cccc".
func (o Opcode) String() string {
	return fmt.Sprintf("0x%02X/%04X", o.Code, o.CompanyID)
}

// AppendTo appends the on-air encoding: code, then company ID little-endian.
func (o Opcode) AppendTo(b []byte) []byte {
	b = append(b, o.Code)
	return binary.LittleEndian.AppendUint16(b, o.CompanyID)
}

// ParseOpcode reads a vendor opcode from the start of b.
func ParseOpcode(b []byte) (Opcode, error) {
	if len(b) < OpcodeLength {
		return Opcode{}, ErrPDUTooShort
	}
	o := Opcode{Code: b[0], CompanyID: binary.LittleEndian.Uint16(b[1:3])}
	if !o.IsVendor() {
		return Opcode{}, fmt.Errorf("%w: 0x%02X", ErrNotVendorOpcode, b[0])
	}
	return o, nil
}

// PDU is an access message with its network metadata.
type PDU struct {
	Src         model.Address
	Dst         model.Address
	TTL         uint8
	AppKeyIndex uint16
	Opcode      Opcode
	Params      []byte
}

// Marshal encodes the PDU.
//
//	| src (2, BE) | dst (2, BE) | ttl (1) | appkey (2, BE) | opcode (3) | params |
func (p *PDU) Marshal() ([]byte, error) {
	if !p.Opcode.IsVendor() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrNotVendorOpcode, p.Opcode.Code)
	}
	if OpcodeLength+len(p.Params) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, OpcodeLength+len(p.Params))
	}

	b := make([]byte, 0, HeaderSize+OpcodeLength+len(p.Params))
	b = binary.BigEndian.AppendUint16(b, uint16(p.Src))
	b = binary.BigEndian.AppendUint16(b, uint16(p.Dst))
	b = append(b, p.TTL)
	b = binary.BigEndian.AppendUint16(b, p.AppKeyIndex)
	b = p.Opcode.AppendTo(b)
	return append(b, p.Params...), nil
}

// UnmarshalPDU decodes a PDU. Params are copied out of data.
func UnmarshalPDU(data []byte) (*PDU, error) {
	if len(data) < HeaderSize+OpcodeLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPDUTooShort, len(data))
	}
	if len(data) > MaxPDUSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data)-HeaderSize)
	}

	op, err := ParseOpcode(data[HeaderSize:])
	if err != nil {
		return nil, err
	}
	params := data[HeaderSize+OpcodeLength:]

	return &PDU{
		Src:         model.Address(binary.BigEndian.Uint16(data[0:2])),
		Dst:         model.Address(binary.BigEndian.Uint16(data[2:4])),
		TTL:         data[4],
		AppKeyIndex: binary.BigEndian.Uint16(data[5:7]),
		Opcode:      op,
		Params:      append([]byte(nil), params...),
	}, nil
}
