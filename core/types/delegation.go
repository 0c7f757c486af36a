package types

// DelegationPrefix is the EIP-7702 delegation designator prefix. An
// account whose code is 0xef0100 ‖ address delegates execution to that
// address.
var DelegationPrefix = []byte{0xef, 0x01, 0x00}

// HasDelegationPrefix reports whether code carries the EIP-7702
// delegation designator.
func HasDelegationPrefix(code []byte) bool {
	if len(code) != len(DelegationPrefix)+AddressLength {
		return false
	}
	return code[0] == DelegationPrefix[0] && code[1] == DelegationPrefix[1] && code[2] == DelegationPrefix[2]
}

// ParseDelegation extracts the delegate address from a delegation
// designator.
func ParseDelegation(code []byte) (Address, bool) {
	if !HasDelegationPrefix(code) {
		return Address{}, false
	}
	return BytesToAddress(code[len(DelegationPrefix):]), true
}

// MakeDelegationCode builds the delegation designator for an address.
func MakeDelegationCode(addr Address) []byte {
	return append(append([]byte{}, DelegationPrefix...), addr[:]...)
}
