package model

import "fmt"

// Address is a 16-bit mesh address.
type Address uint16

const (
	// AddressUnassigned marks an address that is not set.
	AddressUnassigned Address = 0x0000

	// AddressAllNodes is the fixed group address every node listens to.
	AddressAllNodes Address = 0xFFFF

	unicastMax Address = 0x7FFF
	virtualMin Address = 0x8000
	virtualMax Address = 0xBFFF
	groupMin   Address = 0xC000
)

// IsUnicast returns true for addresses identifying a single element.
func (a Address) IsUnicast() bool {
	return a != AddressUnassigned && a <= unicastMax
}

// IsVirtual returns true for virtual (label UUID) addresses.
func (a Address) IsVirtual() bool {
	return a >= virtualMin && a <= virtualMax
}

// IsGroup returns true for group addresses, including the fixed ones.
func (a Address) IsGroup() bool {
	return a >= groupMin
}

// String returns the address in the usual 0xNNNN form.
func (a Address) String() string {
	return fmt.Sprintf("0x%04X", uint16(a))
}
