package transfer

import (
	"path"
	"strings"
	"time"
)

// extensionContentTypes maps recording file extensions to MIME types. Unknown
// extensions fall back to application/octet-stream.
var extensionContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".m4a":  "audio/m4a",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".json": "application/json",
	".txt":  "text/plain",
	".vtt":  "text/vtt",
	".csv":  "text/csv",
}

// ContentTypeFor returns the MIME type for a recording file name.
func ContentTypeFor(fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ct, ok := extensionContentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// SanitizeFileName replaces every character outside [A-Za-z0-9.-] with '_'.
// Total and deterministic: any input maps to a safe key segment.
func SanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

// DestinationKey derives the object key for one recording file:
// {prefix}/{YYYY-MM-DD}/{sessionID}/{fileType}/{sanitizedFileName}.
// Re-running with identical inputs on the same day yields the identical key,
// so repeated transfers overwrite rather than duplicate.
func DestinationKey(prefix, sessionID, fileType, fileName string, now time.Time) string {
	return path.Join(prefix, now.UTC().Format("2006-01-02"), sessionID, fileType, SanitizeFileName(fileName))
}
