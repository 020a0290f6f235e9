// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cookies

import (
	"fmt"
	"time"
)

// Import reads the unexpired cookies for domain and its subdomains from the
// cookie store at path.
func Import(path, domain string) ([]Cookie, Source, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, Source{}, err
	}
	src := Source{Path: path, Format: format}
	now := time.Now()

	var cookies []Cookie
	switch format {
	case FormatNetscape:
		cookies, src.Skipped, err = parseNetscape(path, domain, now)
	case FormatFirefox, FormatChrome:
		parse := parseFirefox
		if format == FormatChrome {
			parse = parseChrome
		}
		copied, cleanup, cerr := copyDatabase(path)
		if cerr != nil {
			return nil, src, cerr
		}
		defer cleanup()
		cookies, err = parse(copied, domain, now)
	default:
		return nil, src, fmt.Errorf("unsupported cookie store at %s", path)
	}
	if err != nil {
		return nil, src, err
	}
	return cookies, src, nil
}
