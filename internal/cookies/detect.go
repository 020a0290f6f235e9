// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cookies

import (
	"bufio"
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
)

var sqliteMagic = []byte("SQLite format 3\x00")

// DetectFormat inspects the file at path and reports its cookie store
// layout.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("cookie file not found: %s", path)
	}
	if info.IsDir() {
		return FormatUnknown, fmt.Errorf("%s is a directory, expected a cookie file", path)
	}
	if info.Size() == 0 {
		return FormatUnknown, fmt.Errorf("cookie file %s is empty", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("opening cookie file: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(sqliteMagic))
	n, err := io.ReadFull(f, header)
	if err == nil && bytes.Equal(header, sqliteMagic) {
		return detectSQLite(path)
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return FormatUnknown, fmt.Errorf("reading cookie file: %w", err)
	}

	first, _ := bufio.NewReader(io.MultiReader(bytes.NewReader(header[:n]), f)).ReadString('\n')
	first = strings.TrimRight(first, "\r\n")
	if first == "# Netscape HTTP Cookie File" || first == "# HTTP Cookie File" {
		return FormatNetscape, nil
	}
	return FormatUnknown, fmt.Errorf("unsupported cookie store at %s", path)
}

func detectSQLite(path string) (Format, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return FormatUnknown, fmt.Errorf("opening cookie database: %w", err)
	}
	defer db.Close()

	var name string
	for _, probe := range []struct {
		table  string
		format Format
	}{
		{"moz_cookies", FormatFirefox},
		{"cookies", FormatChrome},
	} {
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, probe.table).Scan(&name)
		if err == nil {
			return probe.format, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unsupported cookie database schema at %s", path)
}
