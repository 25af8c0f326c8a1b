package watching

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/pkg/errors"
)

// Encoding governs the textual form of paths delivered to event handlers.
// Comparisons and pipeline state always use the canonical byte form of a
// path; conversion to the configured view happens at emission.
type Encoding string

const (
	// EncodingUTF8 delivers paths as-is. It is the default.
	EncodingUTF8 Encoding = "utf8"
	// EncodingBuffer delivers the raw path bytes. The rendered path is left
	// unencoded; consumers should read Event.Bytes.
	EncodingBuffer Encoding = "buffer"
	// EncodingBase64 delivers the base64 encoding of the path bytes.
	EncodingBase64 Encoding = "base64"
	// EncodingHex delivers the hexadecimal encoding of the path bytes.
	EncodingHex Encoding = "hex"
)

// ParseEncoding converts an encoding name to an Encoding, treating an empty
// name as EncodingUTF8. It fails for unrecognized names.
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "", "utf8":
		return EncodingUTF8, nil
	case "buffer":
		return EncodingBuffer, nil
	case "base64":
		return EncodingBase64, nil
	case "hex":
		return EncodingHex, nil
	default:
		return "", errors.Wrapf(ErrUnknownEncoding, "%q", name)
	}
}

// valid indicates whether or not the encoding is a recognized value.
func (e Encoding) valid() bool {
	switch e {
	case EncodingUTF8, EncodingBuffer, EncodingBase64, EncodingHex:
		return true
	default:
		return false
	}
}

// render converts the canonical byte form of a path into the encoding's view
// form.
func (e Encoding) render(path string) string {
	switch e {
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString([]byte(path))
	case EncodingHex:
		return hex.EncodeToString([]byte(path))
	default:
		return path
	}
}
