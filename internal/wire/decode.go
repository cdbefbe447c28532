package wire

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// ErrUnknownContentType is returned when a client sends a block whose type
// discriminator is not recognized.
var ErrUnknownContentType = errors.New("unknown content type")

// DecodeContent converts a block received from a client (for example the
// result of sampling/createMessage) into the domain union.
func DecodeContent(b mcp.ContentBlock) (content.Content, error) {
	switch b.Type {
	case mcp.ContentTypeText:
		return content.Text{Text: b.Text}, nil
	case mcp.ContentTypeImage:
		data, err := base64.StdEncoding.DecodeString(b.Data)
		if err != nil {
			return nil, fmt.Errorf("decode image data: %w", err)
		}
		return content.Image{Data: data, MIMEType: b.MimeType}, nil
	case mcp.ContentTypeAudio:
		data, err := base64.StdEncoding.DecodeString(b.Data)
		if err != nil {
			return nil, fmt.Errorf("decode audio data: %w", err)
		}
		return content.Audio{Data: data, MIMEType: b.MimeType}, nil
	case mcp.ContentTypeResource:
		if b.Resource == nil {
			return nil, fmt.Errorf("resource block without resource")
		}
		er := content.EmbeddedResource{URI: b.Resource.URI, MIMEType: b.Resource.MimeType, Text: b.Resource.Text}
		if b.Resource.Blob != "" {
			blob, err := base64.StdEncoding.DecodeString(b.Resource.Blob)
			if err != nil {
				return nil, fmt.Errorf("decode resource blob: %w", err)
			}
			er.Blob = blob
		}
		return er, nil
	case mcp.ContentTypeResourceLink:
		return content.ResourceLink{
			URI:         b.URI,
			Name:        b.Name,
			Title:       b.Title,
			Description: b.Description,
			MIMEType:    b.MimeType,
			Size:        b.Size,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, b.Type)
	}
}
