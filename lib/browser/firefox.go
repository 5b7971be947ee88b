package browser

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	_ "modernc.org/sqlite"
)

// FirefoxProfile reads session cookies out of a live Firefox profile.
// Persistent cookies live in cookies.sqlite; cookies scoped to the
// browser session only exist in the lz4-compressed session store, so
// both are consulted ("keep the browser window open" is part of the
// contract with the user).
type FirefoxProfile struct {
	Path string
}

// Cookies returns the name->value set for the given hosts, session
// store entries taking precedence over the persistent jar.
func (p FirefoxProfile) Cookies(hosts []string) (map[string]string, error) {
	out, err := p.persistentCookies(hosts)
	if err != nil {
		return nil, err
	}
	session, err := p.sessionCookies(hosts)
	if err != nil {
		return nil, err
	}
	for k, v := range session {
		out[k] = v
	}
	return out, nil
}

func matchHost(host string, hosts []string) bool {
	for _, h := range hosts {
		if host == h || "."+host == h {
			return true
		}
	}
	return false
}

func (p FirefoxProfile) persistentCookies(hosts []string) (map[string]string, error) {
	dbpath := filepath.Join(p.Path, "cookies.sqlite")
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", dbpath))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query("select host, name, value from moz_cookies")
	if err != nil {
		return nil, fmt.Errorf("failed to read firefox cookie store: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var host, name, value string
		if err := rows.Scan(&host, &name, &value); err != nil {
			return nil, err
		}
		if matchHost(host, hosts) {
			out[name] = value
		}
	}
	return out, rows.Err()
}

const mozLz4Magic = "mozLz40\x00"

// decompressMozLz4 unpacks firefox's jsonlz4 container: an 8 byte magic,
// a little-endian uncompressed size, then a single lz4 block.
func decompressMozLz4(data []byte) ([]byte, error) {
	if len(data) < len(mozLz4Magic)+4 || string(data[:len(mozLz4Magic)]) != mozLz4Magic {
		return nil, fmt.Errorf("not a mozLz4 file")
	}
	data = data[len(mozLz4Magic):]
	size := binary.LittleEndian.Uint32(data[:4])
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data[4:], out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func (p FirefoxProfile) sessionCookies(hosts []string) (map[string]string, error) {
	filename := filepath.Join(p.Path, "sessionstore-backups", "recovery.jsonlz4")
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		// browser not running or profile without a session store
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	raw, err := decompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress session store: %w", err)
	}

	var store struct {
		Cookies []struct {
			Host  string `json:"host"`
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"cookies"`
	}
	err = json.Unmarshal(raw, &store)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session store: %w", err)
	}

	out := map[string]string{}
	for _, c := range store.Cookies {
		if matchHost(c.Host, hosts) {
			out[c.Name] = c.Value
		}
	}
	return out, nil
}
