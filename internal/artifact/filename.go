package artifact

import (
	"strings"
	"time"
	"unicode"
)

// maxTextRunes caps how much of the source text is embedded in a name.
const maxTextRunes = 30

const timestampLayout = "2006-01-02T15:04:05.000Z"

// BuildFileName derives a deterministic, filesystem-safe, human-readable
// file name from a prefix, the source text and a timestamp:
// {prefix-}{timestamp with ":" and "." replaced}-{first 30 runes of text,
// letters and digits only}{ext}. CJK characters count as letters and are
// preserved.
func BuildFileName(prefix, text, ext string, now time.Time) string {
	timestamp := strings.NewReplacer(":", "-", ".", "-").
		Replace(now.UTC().Format(timestampLayout))

	var builder strings.Builder

	if prefix != "" {
		builder.WriteString(prefix)
		builder.WriteString("-")
	}

	builder.WriteString(timestamp)
	builder.WriteString("-")
	builder.WriteString(truncateText(text))
	builder.WriteString(ext)

	return builder.String()
}

// SanitizeFileName strips any path components and replaces characters
// that are invalid in common filesystems. Used for caller-supplied file
// names on the upload path.
func SanitizeFileName(fileName string) string {
	base := fileName
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}

	replacer := strings.NewReplacer(
		"<", "_",
		">", "_",
		":", "_",
		"\"", "_",
		"|", "_",
		"?", "_",
		"*", "_",
		"..", "_",
	)

	return replacer.Replace(base)
}

// truncateText takes the first 30 runes of the source text and keeps
// only letters and digits from them.
func truncateText(text string) string {
	runes := []rune(text)
	if len(runes) > maxTextRunes {
		runes = runes[:maxTextRunes]
	}

	var builder strings.Builder

	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}
