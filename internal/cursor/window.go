// Package cursor computes the next slice of a book's text to convert into
// fragments. Offsets count runes of the extracted text.
package cursor

// Window is the span sent to the completion service. Only NewCursor is
// persisted as progress; Start and End include read-only overlap context.
type Window struct {
	Start     int
	End       int
	Cursor    int
	NewCursor int
}

// Next advances generated by at most chunkSize runes and widens the resulting
// span by padding on both sides. It reports false when the text is exhausted.
func Next(generated, textLen, chunkSize, padding int) (Window, bool) {
	if generated < 0 {
		generated = 0
	}
	if generated >= textLen || chunkSize <= 0 {
		return Window{}, false
	}
	if padding < 0 {
		padding = 0
	}
	newCursor := min(generated+chunkSize, textLen)
	return Window{
		Start:     max(0, generated-padding),
		End:       min(newCursor+padding, textLen),
		Cursor:    generated,
		NewCursor: newCursor,
	}, true
}

// Slice returns the window's text from runes.
func (w Window) Slice(runes []rune) string {
	return string(runes[w.Start:w.End])
}

// Len is the number of runes the window spans.
func (w Window) Len() int {
	return w.End - w.Start
}
