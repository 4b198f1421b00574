// Package attach caches gift attachments locally. Admin-uploaded DM images
// are downloaded once at configuration time so later gift sends don't depend
// on the original CDN URL staying alive.
package attach

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "fangate/pkg/logx"
)

type Cache struct {
	dir  string
	http *http.Client
	log  logx.Logger
}

func New(dir string, log logx.Logger) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{
		dir:  dir,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log,
	}
}

func (c *Cache) Dir() string { return c.dir }

// DownloadToLocal fetches url into the cache dir under filename and returns
// the local path. The file is written to a temp name and renamed, so a
// failed download never leaves a partial file behind.
func (c *Cache) DownloadToLocal(ctx context.Context, url, filename string) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(c.dir, sanitizeName(filename))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}

	c.log.Debug("attachment cached", logx.String("url", url), logx.String("path", dst))
	return dst, nil
}

// CleanOrphans removes cached files that no config references anymore.
// Run periodically; config deletes and dm_img replacements leave files
// behind otherwise.
func (c *Cache) CleanOrphans(referenced map[string]struct{}) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		if _, ok := referenced[path]; ok {
			continue
		}
		// Leftover temp files from interrupted downloads are orphans too.
		if err := os.Remove(path); err != nil {
			c.log.Warn("orphan cleanup failed", logx.String("path", path), logx.Err(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		c.log.Info("orphaned attachments removed", logx.Int("count", removed))
	}
	return removed, nil
}

// sanitizeName keeps cached filenames flat and shell-safe.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "attachment"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
