package watching

import (
	"testing"

	"github.com/pkg/errors"
)

// TestParseEncoding tests ParseEncoding with recognized and unrecognized
// names.
func TestParseEncoding(t *testing.T) {
	cases := []struct {
		name     string
		expected Encoding
		fail     bool
	}{
		{"", EncodingUTF8, false},
		{"utf8", EncodingUTF8, false},
		{"buffer", EncodingBuffer, false},
		{"base64", EncodingBase64, false},
		{"hex", EncodingHex, false},
		{"latin1", "", true},
		{"UTF8", "", true},
	}
	for _, c := range cases {
		encoding, err := ParseEncoding(c.name)
		if c.fail {
			if err == nil {
				t.Errorf("parsing %q unexpectedly succeeded", c.name)
			} else if !errors.Is(err, ErrUnknownEncoding) {
				t.Errorf("parsing %q yielded unexpected error: %v", c.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("unable to parse %q: %v", c.name, err)
		} else if encoding != c.expected {
			t.Errorf("parsing %q yielded %q, expected %q", c.name, encoding, c.expected)
		}
	}
}

// TestEncodingRender tests path rendering for each encoding.
func TestEncodingRender(t *testing.T) {
	path := "/watch/file"
	if rendered := EncodingUTF8.render(path); rendered != path {
		t.Error("utf8 rendering modified path:", rendered)
	}
	if rendered := EncodingBuffer.render(path); rendered != path {
		t.Error("buffer rendering modified path:", rendered)
	}
	if rendered := EncodingBase64.render(path); rendered != "L3dhdGNoL2ZpbGU=" {
		t.Error("unexpected base64 rendering:", rendered)
	}
	if rendered := EncodingHex.render(path); rendered != "2f77617463682f66696c65" {
		t.Error("unexpected hex rendering:", rendered)
	}
}
