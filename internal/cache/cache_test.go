package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestAddThenIsCached(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	path := filepath.Join(dir, "client.jar")
	sum := writeFile(t, path, "jar bytes")

	url := "https://example.com/client.jar"
	c.Add(url, path, 9, sum)

	if !c.IsCached(url, path, 9, sum) {
		t.Fatal("freshly added file should be cached")
	}
	if c.IsCached("https://example.com/other.jar", path, 9, sum) {
		t.Fatal("different URL must be a different key")
	}
}

func TestIsCachedEvictsMissingFile(t *testing.T) {
	dir := t.TempDir()
	c, _ := Open(filepath.Join(dir, "cache"))

	path := filepath.Join(dir, "f")
	sum := writeFile(t, path, "content")
	c.Add("u", path, 7, sum)

	os.Remove(path)

	if c.IsCached("u", path, 7, sum) {
		t.Fatal("missing file must not be cached")
	}
	if c.Len() != 0 {
		t.Fatalf("entry not evicted, Len = %d", c.Len())
	}
}

func TestIsCachedRejectsSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	c, _ := Open(filepath.Join(dir, "cache"))

	path := filepath.Join(dir, "f")
	sum := writeFile(t, path, "content")
	c.Add("u", path, 7, sum)

	if c.IsCached("u", path, 9999, sum) {
		t.Fatal("size mismatch must evict")
	}
}

func TestReVerifyAfterWindow(t *testing.T) {
	dir := t.TempDir()
	c, _ := Open(filepath.Join(dir, "cache"))

	base := time.Now()
	c.now = func() time.Time { return base }

	path := filepath.Join(dir, "f")
	sum := writeFile(t, path, "content")
	c.Add("u", path, 7, sum)

	// Past the verify window with intact content: re-hash passes and the
	// verification timestamp moves forward.
	c.now = func() time.Time { return base.Add(25 * time.Hour) }
	if !c.IsCached("u", path, 7, sum) {
		t.Fatal("intact file should re-verify")
	}

	// Corrupt the file, jump past the window again: re-hash fails.
	writeFile(t, path, "tampered")
	c.now = func() time.Time { return base.Add(50 * time.Hour) }
	if c.IsCached("u", path, 0, sum) {
		t.Fatal("tampered file must fail re-verification")
	}
}

func TestExpiryEviction(t *testing.T) {
	dir := t.TempDir()
	c, _ := Open(filepath.Join(dir, "cache"))

	base := time.Now()
	c.now = func() time.Time { return base }

	path := filepath.Join(dir, "f")
	sum := writeFile(t, path, "content")
	c.Add("u", path, 7, sum)

	// Entries older than a week are dropped on the next save.
	c.now = func() time.Time { return base.Add(8 * 24 * time.Hour) }
	c.Add("u2", path, 7, sum)

	if c.IsCached("u", path, 7, sum) {
		t.Fatal("expired entry should be gone")
	}
}

func TestPersistenceAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")

	path := filepath.Join(dir, "f")
	sum := writeFile(t, path, "content")

	c1, _ := Open(cacheDir)
	c1.Add("u", path, 7, sum)

	c2, err := Open(cacheDir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !c2.IsCached("u", path, 7, sum) {
		t.Fatal("entry did not survive reopen")
	}
}

func TestCorruptIndexStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	os.MkdirAll(cacheDir, 0755)
	os.WriteFile(filepath.Join(cacheDir, "download_cache.json"), []byte("{not json"), 0644)

	c, err := Open(cacheDir)
	if err != nil {
		t.Fatalf("Open must tolerate a corrupt index: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}

func TestStatsAndClear(t *testing.T) {
	dir := t.TempDir()
	c, _ := Open(filepath.Join(dir, "cache"))

	jar := filepath.Join(dir, "a.jar")
	js := filepath.Join(dir, "b.json")
	c.Add("u1", jar, 100, writeFile(t, jar, "aaa"))
	c.Add("u2", js, 50, writeFile(t, js, "bbb"))

	s := c.Stats()
	if s.TotalFiles != 2 {
		t.Fatalf("TotalFiles = %d, want 2", s.TotalFiles)
	}
	if s.TotalBytes != 150 {
		t.Fatalf("TotalBytes = %d, want 150", s.TotalBytes)
	}
	if s.FileTypes[".jar"] != 1 || s.FileTypes[".json"] != 1 {
		t.Fatalf("FileTypes = %v", s.FileTypes)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("entries remain after Clear")
	}

	c2, _ := Open(filepath.Join(dir, "cache"))
	if c2.Len() != 0 {
		t.Fatal("cleared index came back after reopen")
	}
}
