// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cookies

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const httpOnlyPrefix = "#HttpOnly_"

// parseNetscape reads a Netscape cookies.txt file. Comment lines are
// skipped except the #HttpOnly_ marker; malformed lines are counted in
// skipped.
func parseNetscape(path, domain string, now time.Time) (cookies []Cookie, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening Netscape cookie file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		httpOnly := false
		if rest, ok := strings.CutPrefix(line, httpOnlyPrefix); ok {
			httpOnly = true
			line = rest
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			skipped++
			continue
		}
		expiry, perr := strconv.ParseInt(fields[4], 10, 64)
		if perr != nil {
			skipped++
			continue
		}
		if !matchesDomain(fields[0], domain) {
			continue
		}
		// Zero expiry is a session cookie.
		if expiry > 0 && time.Unix(expiry, 0).Before(now) {
			continue
		}

		c := Cookie{
			Name:     fields[5],
			Value:    fields[6],
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			HttpOnly: httpOnly,
		}
		if expiry > 0 {
			c.Expiry = time.Unix(expiry, 0)
		}
		cookies = append(cookies, c)
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("reading Netscape cookie file: %w", err)
	}
	return cookies, skipped, nil
}
