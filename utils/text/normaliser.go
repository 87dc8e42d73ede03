package text

import (
	"regexp"
	"strings"
)

var (
	reasoningBlockRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)
	openReasoningRegex  = regexp.MustCompile(`(?s)<think>.*$`)
	markdownLinkRegex   = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	headingRegex        = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	bulletRegex         = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	// Pictographs, dingbats, flags, variation selectors and joiners only;
	// symbols such as ° + $ < are read aloud and stay.
	removeEmojiRegex    = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{1F1E6}-\x{1F1FF}\x{FE00}-\x{FE0F}\x{200D}\x{20E3}\x{E0020}-\x{E007F}]`)
	multipleSpacesRegex = regexp.MustCompile(`\s+`)
)

var markdownMarkers = strings.NewReplacer(
	"**", "", // bold
	"__", "", // underline
	"~~", "", // strikethrough
	"`", "", // inline code
	"*", "", // italic
)

// StripReasoning removes <think>...</think> blocks that reasoning models
// prepend to their answer, including an unterminated trailing block.
func StripReasoning(s string) string {
	s = reasoningBlockRegex.ReplaceAllString(s, "")
	s = openReasoningRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// NormalizeForSpeech turns a markdown reply into plain sentences for a
// speech engine: no markup, no emoji, single spaces.
func NormalizeForSpeech(s string) string {
	s = StripReasoning(s)
	s = markdownLinkRegex.ReplaceAllString(s, "$1")
	s = headingRegex.ReplaceAllString(s, "")
	s = bulletRegex.ReplaceAllString(s, "")
	s = markdownMarkers.Replace(s)
	s = removeEmojiRegex.ReplaceAllString(s, "")
	s = multipleSpacesRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
