package parse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shelfsync/internal/scrape"
)

func TestAuthorParseFullPage(t *testing.T) {
	t.Parallel()

	key := scrape.NewSourceKey(scrape.KindAuthor, "6540057")
	draft, err := (Author{}).Parse(key, loadFixture(t, "author_show_6540057.html"))
	require.NoError(t, err)

	require.Equal(t, "Andy Weir", draft.Name)
	require.Contains(t, draft.Bio, "software engineer")
	require.Equal(t, "https://images.gr-assets.com/authors/1382592903p5/6540057.jpg", draft.ImageURL)

	require.Len(t, draft.Series, 1)
	require.Equal(t, scrape.SeriesRef{ID: "298814", Name: "The Martian"}, draft.Series[0])

	require.False(t, draft.Partial())
}

func TestAuthorParseWithoutBioIsPartial(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
		<h1 class="authorName"><span itemprop="name">Quiet Author</span></h1>
	</body></html>`)

	draft, err := (Author{}).Parse(scrape.NewSourceKey(scrape.KindAuthor, "18541"), body)
	require.NoError(t, err)
	require.Equal(t, "Quiet Author", draft.Name)
	require.True(t, draft.Partial())
	require.ElementsMatch(t, []string{"bio", "image_url"}, draft.Missing)
}

func TestAuthorParseStructureDrift(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body><div class="profileHeader">Someone</div></body></html>`)
	_, err := (Author{}).Parse(scrape.NewSourceKey(scrape.KindAuthor, "18541"), body)
	requireStructureChanged(t, err)
}
