package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// healthFile is the on-disk shape of the proxy health metadata. It sits next
// to the address list and is not part of the page cache.
type healthFile struct {
	SavedAt time.Time `json:"saved_at"`
	Records []Record  `json:"records"`
}

// LoadList reads candidate addresses, one "host:port" per line. Blank lines
// and #-comments are skipped. The list is supplied externally and refreshed
// independently of a single run.
func LoadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var addrs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addrs = append(addrs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy list: %w", err)
	}
	return addrs, nil
}

// SaveHealth persists the pool's health metadata so blacklist windows
// survive process restarts.
func SaveHealth(path string, pool *Pool, now time.Time) error {
	payload := healthFile{SavedAt: now, Records: pool.Snapshot()}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal proxy health: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write proxy health: %w", err)
	}
	return nil
}

// LoadHealth overlays saved health metadata onto the pool. A missing file is
// not an error; the pool simply starts clean.
func LoadHealth(path string, pool *Pool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read proxy health: %w", err)
	}
	var payload healthFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("unmarshal proxy health: %w", err)
	}
	pool.Restore(payload.Records)
	return nil
}
