package protocol

// SeqLess reports whether a comes strictly before b in the modulo-2^32
// sequence space used by Packet.Sequence (spec.md §3: "sequence ... wraps
// permitted; compare modulo 2^32"). This is the standard TCP-style
// serial-number comparison (RFC 1982), not a plain integer less-than.
func SeqLess(a, b uint32) bool {
	return int32(a-b) < 0
}

// SeqLessEqual reports whether a comes at or before b modulo 2^32.
func SeqLessEqual(a, b uint32) bool {
	return a == b || SeqLess(a, b)
}

// SeqDistance returns how many sequence numbers ahead b is of a, modulo
// 2^32. Used for windowing and duplicate-detection bitset indexing.
func SeqDistance(a, b uint32) uint32 {
	return b - a
}
