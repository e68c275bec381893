package rewrite

import (
	"encoding/base64"
	"strings"
)

// b64Variant records which base64 alphabet and padding a payload used so the
// rewritten payload can be emitted the same way.
type b64Variant struct {
	urlSafe bool
	padded  bool
}

func (v b64Variant) encoding() *base64.Encoding {
	switch {
	case v.urlSafe && v.padded:
		return base64.URLEncoding
	case v.urlSafe:
		return base64.RawURLEncoding
	case v.padded:
		return base64.StdEncoding
	default:
		return base64.RawStdEncoding
	}
}

// decodeBase64 accepts standard or URL-safe base64 with or without padding.
func decodeBase64(s string) ([]byte, b64Variant, error) {
	s = strings.Join(strings.Fields(s), "")

	v := b64Variant{
		urlSafe: strings.ContainsAny(s, "-_"),
		padded:  strings.HasSuffix(s, "=") || len(s)%4 == 0,
	}

	normalized := strings.NewReplacer("-", "+", "_", "/").Replace(strings.TrimRight(s, "="))
	data, err := base64.RawStdEncoding.DecodeString(normalized)
	if err != nil {
		return nil, v, err
	}
	return data, v, nil
}
