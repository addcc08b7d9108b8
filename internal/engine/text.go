package engine

import "unicode/utf8"

// TextIndex converts byte offsets within one string into code point offsets.
type TextIndex struct {
	text  string
	ascii bool
}

func NewTextIndex(text string) TextIndex {
	ascii := true
	for i := 0; i < len(text); i++ {
		if text[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	return TextIndex{text: text, ascii: ascii}
}

// Offset returns the code point offset of byte offset b.
func (ix TextIndex) Offset(b int) int {
	if ix.ascii {
		return b
	}
	return utf8.RuneCountInString(ix.text[:b])
}

// Span converts a byte span to a code point span.
func (ix TextIndex) Span(startByte, endByte int) (int, int) {
	if ix.ascii {
		return startByte, endByte
	}
	start := ix.Offset(startByte)
	return start, start + utf8.RuneCountInString(ix.text[startByte:endByte])
}

// ByteOffset converts a code point offset back to a byte offset. Offsets
// past the end clamp to len(text).
func ByteOffset(text string, runeOffset int) int {
	if runeOffset <= 0 {
		return 0
	}
	n := 0
	for i := range text {
		if n == runeOffset {
			return i
		}
		n++
	}
	return len(text)
}
