package pgpdecrypt

import (
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decoders honor a leading UTF-8 or UTF-16 byte order mark and default to UTF-8.
// Invalid UTF-8 becomes U+FFFD
var decoderPool = sync.Pool{
	New: func() any { return unicode.BOMOverride(unicode.UTF8.NewDecoder()) },
}

func decodeText(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	tr := decoderPool.Get().(transform.Transformer)
	defer decoderPool.Put(tr)
	tr.Reset()

	out, _, err := transform.Bytes(tr, b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
