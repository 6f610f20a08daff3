package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem characters that break on one platform or another get mapped
// to full-width equivalents instead of being stripped, so titles stay
// readable.
var charMap = strings.NewReplacer(
	"/", "／",
	"?", "？",
	":", "：",
	"<", "〈",
	">", "〉",
	"|", "｜",
	"\"", "＂",
	"*", "＊",
	"\\", "＼",
)

// SafeName maps unsafe characters and clamps the result to maxLen runes.
func SafeName(text string, maxLen int) string {
	safe := strings.TrimSpace(charMap.Replace(text))
	runes := []rune(safe)
	if maxLen > 0 && len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	return strings.TrimSpace(string(runes))
}

// VideoFolderName names the per-video folder: <title>_<bvid>.
func VideoFolderName(title, bvid string) string {
	return fmt.Sprintf("%s_%s", SafeName(title, 240), bvid)
}

// UserFolderName names a user's download folder: <name>_<uid>.
func UserFolderName(name string, uid int64) string {
	if name == "" {
		name = fmt.Sprintf("UID_%d", uid)
	}
	return fmt.Sprintf("%s_%d", SafeName(name, 200), uid)
}

// CollectionFolderName names a collection folder: <name[:50]>_<id>.
func CollectionFolderName(name string, id int64) string {
	if name == "" {
		name = fmt.Sprintf("Collection_%d", id)
	}
	return fmt.Sprintf("%s_%d", SafeName(name, 50), id)
}

// PageFileName names a sub-part media file: P%02d_<part>.mp4.
func PageFileName(index int, part string) string {
	return fmt.Sprintf("P%02d_%s.mp4", index, SafeName(part, 200))
}

// DanmakuFileName names a sub-part danmaku file: P%02d_<part>_danmaku.jsonl.
func DanmakuFileName(index int, part string) string {
	return fmt.Sprintf("P%02d_%s_danmaku.jsonl", index, SafeName(part, 200))
}

// DynamicFileName names a moment artifact: dynamic_<id>.json.
func DynamicFileName(id string) string {
	return fmt.Sprintf("dynamic_%s.json", id)
}

// Manager handles paths and artifact writes under a base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a storage manager rooted at baseDir.
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// BaseDir returns the root download directory.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// EnsureDir creates the directory joined under the base, returning its
// absolute-ish path.
func (m *Manager) EnsureDir(parts ...string) (string, error) {
	dir := filepath.Join(append([]string{m.baseDir}, parts...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

// Exists reports whether a path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteJSON writes v as indented JSON via a temp file and rename, so a
// crash mid-write never leaves a half-written artifact behind.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}

// WriteJSONLines writes one compact JSON document per line, atomically.
func WriteJSONLines(path string, items []interface{}) error {
	var b strings.Builder
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal line: %w", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}
