// Package chaptertag implements the ID3v2.4-style chapter-tag binary
// encoder: a CTOC/CHAP/APIC/TIT2 frame prefix prepended to multi-part
// streams so a conforming player reads the chapter table before any
// audio frame, plus a size-only query matching the encoder byte-for-byte.
package chaptertag

// encodeSynchsafe packs n into four 7-bit big-endian digits, the
// "synchsafe" integer encoding ID3v2 uses so a tag body can never
// contain a byte sequence that looks like a frame sync.
func encodeSynchsafe(n int) [4]byte {
	return [4]byte{
		byte((n >> 21) & 0x7F),
		byte((n >> 14) & 0x7F),
		byte((n >> 7) & 0x7F),
		byte(n & 0x7F),
	}
}

// decodeSynchsafe reverses encodeSynchsafe. Used by tests to verify the
// header's declared size matches the actual payload length.
func decodeSynchsafe(b []byte) int {
	return int(b[0])<<21 | int(b[1])<<14 | int(b[2])<<7 | int(b[3])
}
