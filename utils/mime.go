package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

// OctetStream is used when nothing better is known
const OctetStream = "application/octet-stream"

var mimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"csv":  "text/csv",
	"txt":  "text/plain",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"wav":  "audio/wav",
}

// MIMETypeFor returns the MIME type for a file name's extension, or "" when
// the extension is not known.
func MIMETypeFor(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	return mimeTypes[ext]
}

// DetectMIMEType prefers the extension table, then the response
// Content-Type, then application/octet-stream.
func DetectMIMEType(fileName, contentType string) string {
	if t := MIMETypeFor(fileName); t != "" {
		return t
	}
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType != "" {
			return mediaType
		}
	}
	return OctetStream
}
