package pager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPages_StopsOnShortPage(t *testing.T) {
	pages := [][]int{
		{1, 2, 3},
		{4, 5, 6},
		{7}, // short page ends the stream
	}

	fetches := 0
	p := &Pages[int]{
		PageSize: 3,
		Fetch: func(ctx context.Context, page int) ([]int, error) {
			fetches++
			return pages[page-1], nil
		},
	}

	all, err := p.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, all)
	assert.Equal(t, 3, fetches)
}

func TestPages_StopsOnEmptyPage(t *testing.T) {
	p := &Pages[int]{
		PageSize: 3,
		Fetch: func(ctx context.Context, page int) ([]int, error) {
			if page == 1 {
				return []int{1, 2, 3}, nil
			}
			return nil, nil
		},
	}

	all, err := p.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, all)
}

func TestPages_FetchErrorKeepsPartialResults(t *testing.T) {
	p := &Pages[int]{
		PageSize: 2,
		Fetch: func(ctx context.Context, page int) ([]int, error) {
			if page == 1 {
				return []int{1, 2}, nil
			}
			return nil, errors.New("upstream gave up")
		},
	}

	all, err := p.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, all)
}

func TestPages_StartPageAndMaxPages(t *testing.T) {
	var fetched []int
	p := &Pages[int]{
		PageSize:  2,
		StartPage: 3,
		MaxPages:  2,
		Fetch: func(ctx context.Context, page int) ([]int, error) {
			fetched = append(fetched, page)
			return []int{page * 10, page*10 + 1}, nil
		},
	}

	all, err := p.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, fetched)
	assert.Equal(t, []int{30, 31, 40, 41}, all)
}

func TestPages_HandleErrorStopsIteration(t *testing.T) {
	boom := errors.New("handler refused")
	p := &Pages[int]{
		PageSize: 1,
		Fetch: func(ctx context.Context, page int) ([]int, error) {
			return []int{page}, nil
		},
	}

	err := p.Each(context.Background(), func(ctx context.Context, items []int) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCursor_WalksUntilEmptyOffset(t *testing.T) {
	pages := map[string]struct {
		items []string
		next  string
	}{
		"":     {[]string{"a", "b"}, "off1"},
		"off1": {[]string{"c"}, "off2"},
		"off2": {[]string{"d"}, ""},
	}

	c := &Cursor[string]{
		Fetch: func(ctx context.Context, offset string) ([]string, string, error) {
			p := pages[offset]
			return p.items, p.next, nil
		},
	}

	all, err := c.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, all)
}

func TestCursor_FetchErrorKeepsPartialResults(t *testing.T) {
	c := &Cursor[string]{
		Fetch: func(ctx context.Context, offset string) ([]string, string, error) {
			if offset == "" {
				return []string{"a"}, "off1", nil
			}
			return nil, "", errors.New("upstream gave up")
		},
	}

	all, err := c.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, all)
}

func TestCursor_StartPageDiscardsLeadInPages(t *testing.T) {
	offsets := []string{"", "off1", "off2", ""}
	items := [][]string{{"a"}, {"b"}, {"c"}}

	call := 0
	c := &Cursor[string]{
		StartPage: 2,
		Fetch: func(ctx context.Context, offset string) ([]string, string, error) {
			assert.Equal(t, offsets[call], offset)
			page := items[call]
			call++
			return page, offsets[call], nil
		},
	}

	all, err := c.All(context.Background())
	require.NoError(t, err)
	// page one walked for its offset, items discarded
	assert.Equal(t, []string{"b", "c"}, all)
	assert.Equal(t, 3, call)
}

func TestCursor_MaxPages(t *testing.T) {
	c := &Cursor[int]{
		MaxPages: 2,
		Fetch: func(ctx context.Context, offset string) ([]int, string, error) {
			return []int{1}, "more", nil
		},
	}

	all, err := c.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, all)
}

func TestCursor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &Cursor[int]{
		Fetch: func(ctx context.Context, offset string) ([]int, string, error) {
			return []int{1}, "more", nil
		},
	}

	_, err := c.All(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
