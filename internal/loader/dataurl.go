package loader

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// decodedDataURL is the result of parsing an RFC 2397 "data:" URL:
// data:[<mediatype>][;charset=<charset>][;base64],<data>
type decodedDataURL struct {
	MediaType string
	Charset   string
	Body      string
}

// decodeDataURL parses and decodes a data: URL's payload. It is the one
// scheme Load resolves synchronously, entirely independent of every other
// collaborator -- a bare decode of whatever bytes follow the comma.
func decodeDataURL(raw string) (decodedDataURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return decodedDataURL{}, fmt.Errorf("loader: parsing data URL: %w", err)
	}
	if u.Scheme != "data" {
		return decodedDataURL{}, fmt.Errorf("loader: not a data: URL: %s", raw)
	}

	// url.Parse leaves everything after "data:" in Opaque when there is no
	// "//" authority, which is always true for data URLs.
	rest := u.Opaque
	if rest == "" {
		rest = strings.TrimPrefix(raw, "data:")
	}

	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return decodedDataURL{}, fmt.Errorf("loader: malformed data URL, no comma: %s", raw)
	}
	meta, payload := rest[:comma], rest[comma+1:]

	isBase64 := false
	mediaType := "text/plain"
	charset := "US-ASCII"

	if meta != "" {
		parts := strings.Split(meta, ";")
		if !strings.Contains(parts[0], "=") && parts[0] != "" {
			mediaType = parts[0]
			parts = parts[1:]
		}
		for _, p := range parts {
			if p == "base64" {
				isBase64 = true
				continue
			}
			if strings.HasPrefix(p, "charset=") {
				charset = strings.TrimPrefix(p, "charset=")
			}
		}
	}

	var body []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return decodedDataURL{}, fmt.Errorf("loader: decoding base64 data URL: %w", err)
		}
		body = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return decodedDataURL{}, fmt.Errorf("loader: unescaping data URL payload: %w", err)
		}
		body = []byte(unescaped)
	}

	return decodedDataURL{MediaType: mediaType, Charset: charset, Body: string(body)}, nil
}
