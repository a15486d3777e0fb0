package llm

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Media is an inline image passed to the model alongside the prompt.
type Media struct {
	MIMEType string
	Data     []byte
}

// ParseDataURI decodes a base64 data URI of the form
// "data:<mimetype>;base64,<payload>".
func ParseDataURI(uri string) (Media, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return Media{}, fmt.Errorf("%w: image must be a data URI", ErrInvalidRequest)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Media{}, fmt.Errorf("%w: data URI has no payload", ErrInvalidRequest)
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return Media{}, fmt.Errorf("%w: data URI must be base64 encoded", ErrInvalidRequest)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Media{}, fmt.Errorf("%w: invalid base64 payload: %w", ErrInvalidRequest, err)
	}
	if len(data) == 0 {
		return Media{}, fmt.Errorf("%w: empty image", ErrInvalidRequest)
	}
	return Media{MIMEType: mimeType, Data: data}, nil
}

// DataURI encodes the media back into a data URI.
func (m Media) DataURI() string {
	return "data:" + m.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(m.Data)
}

// Base64 returns the raw base64 payload without the data URI prefix.
func (m Media) Base64() string {
	return base64.StdEncoding.EncodeToString(m.Data)
}
