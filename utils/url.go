package utils

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"translink/internal"
)

const (
	// UploadPath receives document uploads
	UploadPath = "/translator/upload"
	// TextPath translates plain text
	TextPath = "/translator/text"
	// ImagePath runs OCR and translation on an image
	ImagePath = "/translator/image"
	// AudioPath runs speech-to-text and translation on a recording
	AudioPath = "/translator/audio"

	socketIOPath = "/socket.io/"
)

// DownloadPath returns the download endpoint for a translated file
func DownloadPath(fileName string) string {
	return "/translator/download/" + url.PathEscape(fileName)
}

// ValidateFileName rejects names that could escape the cache directory
func ValidateFileName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return internal.NewValidationError("fileName", "cannot be empty")
	case name == "." || name == "..":
		return internal.NewValidationError("fileName", fmt.Sprintf("invalid name %q", name))
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return internal.NewValidationError("fileName", fmt.Sprintf("must not contain path separators: %q", name))
	}
	return nil
}

// ChannelEndpoint describes how to reach the event channel server
type ChannelEndpoint struct {
	// SocketURL is the websocket URL including the socket.io handshake query
	SocketURL string
	// Origin is the http(s) origin sent with the websocket handshake
	Origin string
	// HostPort is the TCP address used for reachability probes
	HostPort string
}

// ParseChannelURL converts an http(s) or ws(s) base URL into a socket.io endpoint
func ParseChannelURL(raw string) (*ChannelEndpoint, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, internal.NewValidationError("ws_url", fmt.Sprintf("invalid URL format: %v", err))
	}
	if parsed.Host == "" {
		return nil, internal.NewValidationError("ws_url", "host cannot be empty")
	}

	var wsScheme, httpScheme, defaultPort string
	switch strings.ToLower(parsed.Scheme) {
	case "http", "ws":
		wsScheme, httpScheme, defaultPort = "ws", "http", "80"
	case "https", "wss":
		wsScheme, httpScheme, defaultPort = "wss", "https", "443"
	default:
		return nil, internal.NewValidationError("ws_url", "URL must use http, https, ws or wss")
	}

	port := parsed.Port()
	if port == "" {
		port = defaultPort
	}

	socket := url.URL{
		Scheme:   wsScheme,
		Host:     parsed.Host,
		Path:     strings.TrimRight(parsed.Path, "/") + socketIOPath,
		RawQuery: url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode(),
	}
	origin := url.URL{Scheme: httpScheme, Host: parsed.Host}

	return &ChannelEndpoint{
		SocketURL: socket.String(),
		Origin:    origin.String(),
		HostPort:  net.JoinHostPort(parsed.Hostname(), port),
	}, nil
}
