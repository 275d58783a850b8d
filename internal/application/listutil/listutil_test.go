package listutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

var defaultSort = SortParams{Sort: "date", Dir: Desc}

// TestParsePageParams verifies defaults and clamping.
func TestParsePageParams(t *testing.T) {
	assert.Equal(t, PageParams{Page: 1, PerPage: DefaultPerPage}, ParsePageParams(url.Values{}))
	assert.Equal(t, PageParams{Page: 3, PerPage: 50}, ParsePageParams(url.Values{"page": {"3"}, "per_page": {"50"}}))
	assert.Equal(t, PageParams{Page: 1, PerPage: DefaultPerPage}, ParsePageParams(url.Values{"page": {"-1"}, "per_page": {"33"}}))
}

// TestParseSortParams verifies unknown columns fall back to the default sort.
func TestParseSortParams(t *testing.T) {
	cols := []string{"date", "customer"}
	assert.Equal(t, SortParams{Sort: "customer", Dir: Desc}, ParseSortParams(url.Values{"sort": {"customer"}, "dir": {"DESC"}}, cols, defaultSort))
	assert.Equal(t, SortParams{Sort: "customer", Dir: Asc}, ParseSortParams(url.Values{"sort": {"customer"}, "dir": {"sideways"}}, cols, defaultSort))
	assert.Equal(t, defaultSort, ParseSortParams(url.Values{"sort": {"password"}}, cols, defaultSort))
}

func TestParseFilterParams(t *testing.T) {
	fp := ParseFilterParams(url.Values{"q": {"  omar "}, "court": {"padel"}, "status": {""}, "evil": {"1"}}, []string{"court", "status"})
	assert.Equal(t, "omar", fp.Search)
	assert.Equal(t, map[string]string{"court": "padel"}, fp.Filters)
}

// TestListParams_Values verifies parameters survive a round trip through a query string.
func TestListParams_Values(t *testing.T) {
	in := url.Values{"q": {"mona"}, "court": {"tennis"}, "sort": {"price"}, "dir": {"asc"}, "page": {"2"}, "per_page": {"10"}}
	p := ParseListParams(in, []string{"price"}, defaultSort, []string{"court"})
	assert.Equal(t, in.Encode(), p.Values().Encode())

	assert.Empty(t, ParseListParams(url.Values{}, nil, SortParams{}, nil).Values().Encode())
}

func TestNewPageInfo(t *testing.T) {
	p := NewPageInfo(5, 10, 42)
	assert.Equal(t, PageInfo{Page: 5, PerPage: 10, Total: 42, TotalPages: 5}, p)
	assert.Equal(t, 41, p.StartRow())
	assert.Equal(t, 42, p.EndRow())

	p = NewPageInfo(9, 10, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, 0, p.StartRow())
	assert.False(t, p.ShowPagination())
}

func TestPageNumbers(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3, 4, 5}, NewPageInfo(1, 10, 100).PageNumbers())
	assert.Equal(t, []int{4, 5, 6, 7, 8}, NewPageInfo(6, 10, 100).PageNumbers())
	assert.Equal(t, []int{6, 7, 8, 9, 10}, NewPageInfo(10, 10, 100).PageNumbers())
	assert.Equal(t, []int{1, 2}, NewPageInfo(2, 10, 15).PageNumbers())
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	assert.Equal(t, []int{4, 5, 6}, Paginate(items, NewPageInfo(2, 3, len(items))))
	assert.Equal(t, []int{7}, Paginate(items, NewPageInfo(3, 3, len(items))))
	assert.Empty(t, Paginate([]int{}, NewPageInfo(1, 3, 0)))
}
