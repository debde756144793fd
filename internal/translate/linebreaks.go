package translate

import "strings"

// The endpoint splits its input on line breaks and translates each piece on
// its own, so breaks travel as zero-width code points that it passes through.
const (
	lineFeedMark       = "\u200b" // zero width space
	carriageReturnMark = "\u200c" // zero width non-joiner
)

var (
	encoder = strings.NewReplacer("\n", lineFeedMark, "\r", carriageReturnMark)
	decoder = strings.NewReplacer(lineFeedMark, "\n", carriageReturnMark, "\r")
)

// EncodeLineBreaks hides "\n", "\r" and "\r\n" from the endpoint.
func EncodeLineBreaks(s string) string { return encoder.Replace(s) }

// DecodeLineBreaks reverses EncodeLineBreaks.
func DecodeLineBreaks(s string) string { return decoder.Replace(s) }
