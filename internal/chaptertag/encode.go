package chaptertag

import (
	"encoding/binary"

	"github.com/podible/podible-server/internal/domain"
)

// Cover is the image attached via an APIC frame.
type Cover struct {
	MIME string
	Data []byte
}

// unknownOffset is the byte-offset sentinel ID3v2 CHAP frames use when
// byte offsets into the audio are not tracked (this system addresses
// chapters purely by millisecond timing, so offsets are always
// unknown).
const unknownOffset uint32 = 0xFFFFFFFF

// Encode produces the full chapter-tag buffer for chapters and an
// optional cover. Zero chapters and no cover yields an empty buffer.
func Encode(chapters []domain.ChapterTiming, cover *Cover) []byte {
	payload := buildPayload(chapters, cover)
	if len(payload) == 0 {
		return nil
	}

	size := encodeSynchsafe(len(payload))
	out := make([]byte, 0, 10+len(payload))
	out = append(out, 'I', 'D', '3')
	out = append(out, 0x04, 0x00) // version 2.4.0
	out = append(out, 0x00)       // flags
	out = append(out, size[:]...)
	out = append(out, payload...)
	return out
}

func buildPayload(chapters []domain.ChapterTiming, cover *Cover) []byte {
	if len(chapters) == 0 && cover == nil {
		return nil
	}

	var payload []byte
	if cover != nil {
		payload = appendFrame(payload, "APIC", apicBody(cover))
	}
	if len(chapters) > 0 {
		payload = appendFrame(payload, "CTOC", ctocBody(chapters))
		for _, ch := range chapters {
			payload = appendFrame(payload, "CHAP", chapBody(ch))
		}
	}
	return payload
}

func apicBody(cover *Cover) []byte {
	body := make([]byte, 0, 3+len(cover.MIME)+len(cover.Data))
	body = append(body, 0x03)           // text encoding: UTF-8
	body = append(body, cover.MIME...)  // MIME type
	body = append(body, 0x00)           // MIME terminator
	body = append(body, 0x03)           // picture type: front cover
	body = append(body, 0x00)           // empty description, terminator only
	body = append(body, cover.Data...)
	return body
}

func ctocBody(chapters []domain.ChapterTiming) []byte {
	body := []byte("toc")
	body = append(body, 0x00)
	body = append(body, 0x03)            // flags: top-level + ordered
	body = append(body, byte(len(chapters))) // child count

	for _, ch := range chapters {
		body = append(body, ch.ID...)
		body = append(body, 0x00)
	}

	body = appendFrame(body, "TIT2", textFrameBody("Chapters"))
	return body
}

func chapBody(ch domain.ChapterTiming) []byte {
	body := make([]byte, 0, len(ch.ID)+1+16+frameHeaderSize+1+len(ch.Title))
	body = append(body, ch.ID...)
	body = append(body, 0x00)
	body = binary.BigEndian.AppendUint32(body, uint32(ch.StartMs))
	body = binary.BigEndian.AppendUint32(body, uint32(ch.EndMs))
	body = binary.BigEndian.AppendUint32(body, unknownOffset)
	body = binary.BigEndian.AppendUint32(body, unknownOffset)
	body = appendFrame(body, "TIT2", textFrameBody(ch.Title))
	return body
}
