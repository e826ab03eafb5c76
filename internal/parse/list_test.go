package parse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shelfsync/internal/scrape"
)

func TestListParseFullPage(t *testing.T) {
	t.Parallel()

	key := scrape.NewSourceKey(scrape.KindList, "115331")
	draft, err := (List{}).Parse(key, loadFixture(t, "list_show_115331_page1.html"))
	require.NoError(t, err)

	require.Len(t, draft.Books, 2)

	first := draft.Books[0]
	require.Equal(t, "54493401", first.ID)
	require.Equal(t, "Project Hail Mary", first.Title)
	require.Equal(t, "6540057", first.AuthorID)
	require.Equal(t, "Andy Weir", first.AuthorName)
	require.Equal(t, 4.52, first.Rating)
	require.Equal(t, 875036, first.RatingCount)
	require.Equal(t, 19822, first.Score)
	require.Equal(t, 201, first.Votes)

	require.Equal(t, "The Martian", draft.Books[1].Title)
	require.Equal(t, 1201873, draft.Books[1].RatingCount)

	require.Equal(t, 3, draft.TotalPages)
}

func TestListParseStructureDrift(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body><table class="tableList"><tr><td>no typed rows</td></tr></table></body></html>`)
	_, err := (List{}).Parse(scrape.NewSourceKey(scrape.KindList, "115331"), body)
	requireStructureChanged(t, err)
}
