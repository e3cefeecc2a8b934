package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedDigest/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDeduplicatesFirstSeenWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.opml", `<opml><body>
	  <outline text="Shared From A" xmlUrl="https://shared.example.com/rss"/>
	  <outline text="Only A" xmlUrl="https://a.example.com/rss"/>
	</body></opml>`)
	writeFile(t, dir, "B.OPML", `<opml><body>
	  <outline text="Folder"><outline text="Shared From B" xmlUrl="https://shared.example.com/rss"/></outline>
	</body></opml>`)
	writeFile(t, dir, "notes.txt", "ignored")

	corpus, err := NewOPMLSource(dir, nil).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, corpus.OPMLFileCount)
	assert.Equal(t, 3, corpus.TotalFeedEntries)
	require.Len(t, corpus.Feeds, 2)

	titles := map[string]string{}
	for _, f := range corpus.Feeds {
		titles[f.FeedURL] = f.Title
	}
	// "B.OPML" sorts before "a.opml" byte-wise.
	assert.Equal(t, "Shared From B", titles["https://shared.example.com/rss"])
}

func TestLoadFirstSeenFollowsFileOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "01.opml", `<opml><body><outline text="First" xmlUrl="https://x/rss"/></body></opml>`)
	writeFile(t, dir, "02.opml", `<opml><body><outline text="Second" xmlUrl="https://x/rss"/></body></opml>`)

	corpus, err := NewOPMLSource(dir, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, corpus.Feeds, 1)
	assert.Equal(t, "First", corpus.Feeds[0].Title)
}

func TestLoadCreatesMissingDirAndFails(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "feeds")
	_, err := NewOPMLSource(dir, nil).Load(context.Background())

	var noSource *domain.NoFeedSourceError
	require.True(t, errors.As(err, &noSource))
	assert.Equal(t, dir, noSource.Dir)

	info, statErr := os.Stat(dir)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestLoadSkipsMalformedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "bad.opml", `<opml><body><outline`)
	writeFile(t, dir, "good.opml", `<opml><body><outline text="Good" xmlUrl="https://good/rss"/></body></opml>`)

	corpus, err := NewOPMLSource(dir, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, corpus.OPMLFileCount)
	require.Len(t, corpus.Feeds, 1)
	assert.Equal(t, "Good", corpus.Feeds[0].Title)
}
