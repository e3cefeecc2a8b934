package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"FeedDigest/internal/domain"
	"FeedDigest/internal/opml"
	"FeedDigest/internal/ports"
)

// OPMLSource implements FeedSource over a directory of OPML exports.
type OPMLSource struct {
	dir    string
	logger *slog.Logger
}

var _ ports.FeedSource = (*OPMLSource)(nil)

// NewOPMLSource wires the source directory; it is created on first Load when absent.
func NewOPMLSource(dir string, log *slog.Logger) *OPMLSource {
	return &OPMLSource{dir: dir, logger: log}
}

// Load reads every .opml file concurrently and merges them in file-name
// order, keeping the first descriptor seen for each feed URL.
func (s *OPMLSource) Load(ctx context.Context) (domain.FeedCorpus, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return domain.FeedCorpus{}, fmt.Errorf("ensure source dir %s: %w", s.dir, err)
	}

	files, err := listOPMLFiles(s.dir)
	if err != nil {
		return domain.FeedCorpus{}, err
	}
	if len(files) == 0 {
		return domain.FeedCorpus{}, &domain.NoFeedSourceError{Dir: s.dir}
	}

	s.debug("load opml files", "dir", s.dir, "files", len(files))

	perFile := make([][]domain.FeedDescriptor, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range files {
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(s.dir, name)
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			feeds, err := opml.Parse(raw)
			if err != nil {
				s.warn("skip malformed opml", "file", name, "error", err)
				return nil
			}
			perFile[i] = feeds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.FeedCorpus{}, fmt.Errorf("load opml files: %w", err)
	}

	corpus := domain.FeedCorpus{SourceDir: s.dir, OPMLFileCount: len(files)}
	seen := map[string]struct{}{}
	for i, feeds := range perFile {
		corpus.TotalFeedEntries += len(feeds)
		for _, feed := range feeds {
			if _, ok := seen[feed.FeedURL]; ok {
				continue
			}
			seen[feed.FeedURL] = struct{}{}
			corpus.Feeds = append(corpus.Feeds, feed)
		}
		s.debug("opml file merged", "file", files[i], "feeds", len(feeds))
	}

	s.debug("opml source done", "unique_feeds", len(corpus.Feeds), "total_entries", corpus.TotalFeedEntries)
	return corpus, nil
}

func listOPMLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list source dir %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".opml") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *OPMLSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *OPMLSource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
