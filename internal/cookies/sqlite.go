// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cookies

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Chrome timestamps count microseconds from 1601-01-01 UTC.
const chromeEpochOffset int64 = 11_644_473_600

func chromeToUnix(usec int64) int64 { return usec/1_000_000 - chromeEpochOffset }

func unixToChrome(sec int64) int64 { return (sec + chromeEpochOffset) * 1_000_000 }

const firefoxQuery = `
SELECT name, value, host, path, expiry, isSecure, isHttpOnly
FROM moz_cookies
WHERE (host = ? OR host = ? OR host LIKE ?) AND expiry > ?
ORDER BY path DESC, name ASC`

// Encrypted rows have an empty value column.
const chromeQuery = `
SELECT name, value, host_key, path, expires_utc, is_secure, is_httponly
FROM cookies
WHERE (host_key = ? OR host_key = ? OR host_key LIKE ?) AND value != '' AND expires_utc > ?
ORDER BY path DESC, name ASC`

func parseFirefox(path, domain string, now time.Time) ([]Cookie, error) {
	return querySQLite(path, firefoxQuery, domain, now.Unix(), func(v int64) time.Time {
		return time.Unix(v, 0)
	})
}

func parseChrome(path, domain string, now time.Time) ([]Cookie, error) {
	return querySQLite(path, chromeQuery, domain, unixToChrome(now.Unix()), func(v int64) time.Time {
		return time.Unix(chromeToUnix(v), 0)
	})
}

func querySQLite(path, query, domain string, minExpiry int64, toTime func(int64) time.Time) ([]Cookie, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening cookie database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(query, domain, "."+domain, "%."+domain, minExpiry)
	if err != nil {
		return nil, fmt.Errorf("querying cookies: %w", err)
	}
	defer rows.Close()

	var out []Cookie
	for rows.Next() {
		var (
			c                Cookie
			expiry           int64
			secure, httpOnly int
		)
		if err := rows.Scan(&c.Name, &c.Value, &c.Domain, &c.Path, &expiry, &secure, &httpOnly); err != nil {
			return nil, fmt.Errorf("scanning cookie row: %w", err)
		}
		c.Expiry = toTime(expiry)
		c.Secure = secure != 0
		c.HttpOnly = httpOnly != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// copyDatabase copies a SQLite file and its -wal and -shm companions into a
// temporary directory so a running browser's locks do not get in the way.
// The caller must call cleanup.
func copyDatabase(src string) (copied string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "pubmed-retriever-cookies-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	copied = filepath.Join(dir, filepath.Base(src))
	if err := copyFile(src, copied); err != nil {
		cleanup()
		return "", nil, err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(src + suffix); err == nil {
			_ = copyFile(src+suffix, copied+suffix)
		}
	}
	return copied, cleanup, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
