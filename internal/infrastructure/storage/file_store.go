package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"FeedDigest/internal/ports"
	"FeedDigest/internal/report"
)

const (
	narrativeExt  = ".md"
	structuredExt = ".json"
)

// FileStore keeps report artifacts as files in one directory.
type FileStore struct {
	dir string
}

var _ ports.ReportStore = (*FileStore)(nil)

// NewFileStore wires the reports directory; it is created on demand.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Paths returns the first free artifact pair for stamp. A second run within
// the same second gets a "-2" suffix, then "-3" and so on.
func (s *FileStore) Paths(stamp string) (string, string) {
	base := stamp
	for seq := 2; s.taken(base); seq++ {
		base = fmt.Sprintf("%s-%d", stamp, seq)
	}
	return filepath.Join(s.dir, base+narrativeExt), filepath.Join(s.dir, base+structuredExt)
}

func (s *FileStore) taken(base string) bool {
	for _, ext := range []string{narrativeExt, structuredExt} {
		if _, err := os.Stat(filepath.Join(s.dir, base+ext)); err == nil {
			return true
		}
	}
	return false
}

// reportName is a narrative file name split into its stamp and same-second sequence.
type reportName struct {
	stamp string
	seq   int
}

func (n reportName) after(o reportName) bool {
	if n.stamp != o.stamp {
		return n.stamp > o.stamp
	}
	return n.seq > o.seq
}

func parseReportName(name string) (reportName, bool) {
	base, ok := strings.CutSuffix(name, narrativeExt)
	if !ok || len(base) < len(report.StampLayout) {
		return reportName{}, false
	}

	stamp, rest := base[:len(report.StampLayout)], base[len(report.StampLayout):]
	if _, err := time.Parse(report.StampLayout, stamp); err != nil {
		return reportName{}, false
	}
	if rest == "" {
		return reportName{stamp: stamp, seq: 1}, true
	}

	digits, ok := strings.CutPrefix(rest, "-")
	if !ok {
		return reportName{}, false
	}
	seq, err := strconv.Atoi(digits)
	if err != nil || seq < 2 {
		return reportName{}, false
	}
	return reportName{stamp: stamp, seq: seq}, true
}

// Latest returns the newest stamped narrative report; other Markdown files are ignored.
func (s *FileStore) Latest(ctx context.Context) (string, string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", "", false, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", "", false, fmt.Errorf("ensure reports dir %s: %w", s.dir, err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", "", false, fmt.Errorf("list reports dir %s: %w", s.dir, err)
	}

	var (
		latest     string
		latestName reportName
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parsed, ok := parseReportName(entry.Name())
		if !ok {
			continue
		}
		if latest == "" || parsed.after(latestName) {
			latest, latestName = entry.Name(), parsed
		}
	}
	if latest == "" {
		return "", "", false, nil
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, latest))
	if err != nil {
		return "", "", false, fmt.Errorf("read previous report %s: %w", latest, err)
	}
	return latest, string(raw), true, nil
}

// Save writes both artifacts and refuses to replace an existing file.
func (s *FileStore) Save(ctx context.Context, narrativePath, structuredPath string, narrative, structured []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("ensure reports dir %s: %w", s.dir, err)
	}

	if err := writeNew(narrativePath, narrative); err != nil {
		return fmt.Errorf("write narrative report: %w", err)
	}
	if err := writeNew(structuredPath, structured); err != nil {
		return fmt.Errorf("write structured report: %w", err)
	}
	return nil
}

func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
