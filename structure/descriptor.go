package structure

// Descriptor is the wire form of begin_structure.
type Descriptor struct {
	Name     string  `msgpack:"name"`
	Kind     Kind    `msgpack:"kind"`
	ByteSize int     `msgpack:"size"`
	Align    int     `msgpack:"align"`
	Length   int     `msgpack:"length,omitempty"`
	Flags    Flags   `msgpack:"flags"`
	Purpose  Purpose `msgpack:"purpose,omitempty"`
}

// MemberDescriptor is the wire form of attach_member. Structure is the
// handle of the member's structure, 0 for none. Slot is -1 when the member
// has no slot.
type MemberDescriptor struct {
	Name      string      `msgpack:"name"`
	Type      MemberType  `msgpack:"type"`
	BitOffset int         `msgpack:"bit_offset"`
	BitSize   int         `msgpack:"bit_size"`
	ByteSize  int         `msgpack:"byte_size,omitempty"`
	Slot      int         `msgpack:"slot"`
	Flags     MemberFlags `msgpack:"flags,omitempty"`
	Structure uint32      `msgpack:"structure,omitempty"`
}
