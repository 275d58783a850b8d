package listutil

import (
	"net/url"
	"strconv"
	"strings"
)

// PageParams carries pagination parameters parsed from a request.
type PageParams struct {
	Page    int // 1-indexed
	PerPage int
}

// SortParams carries sorting parameters parsed from a request.
type SortParams struct {
	Sort string // column name
	Dir  string // "asc" or "desc"
}

// FilterParams carries search and filter parameters.
type FilterParams struct {
	Search  string            // free-text query, trimmed
	Filters map[string]string // recognised exact-match filters (court=padel)
}

// PageInfo carries pagination metadata for rendering.
type PageInfo struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// ListParams combines all list view parameters.
type ListParams struct {
	PageParams
	SortParams
	FilterParams
}

// DefaultPerPage is the default number of rows per page.
const DefaultPerPage = 25

// PerPageOptions are the allowed rows-per-page values.
var PerPageOptions = []int{10, 25, 50, 100}

// Directions.
const (
	Asc  = "asc"
	Desc = "desc"
)

// ParsePageParams extracts page and per_page.
// POST: Page >= 1 and PerPage is one of PerPageOptions
func ParsePageParams(q url.Values) PageParams {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if !contains(PerPageOptions, perPage) {
		perPage = DefaultPerPage
	}
	return PageParams{Page: page, PerPage: perPage}
}

// ParseSortParams extracts sort and dir, falling back to def for unknown columns.
// POST: Sort is def or one of allowed; Dir is Asc or Desc
func ParseSortParams(q url.Values, allowed []string, def SortParams) SortParams {
	sort := q.Get("sort")
	if !contains(allowed, sort) {
		return def
	}
	dir := strings.ToLower(q.Get("dir"))
	if dir != Asc && dir != Desc {
		dir = Asc
	}
	return SortParams{Sort: sort, Dir: dir}
}

// ParseFilterParams extracts the "q" search and the listed filter keys.
// POST: Filters holds only non-empty values of recognised keys
func ParseFilterParams(q url.Values, filterKeys []string) FilterParams {
	fp := FilterParams{
		Search:  strings.TrimSpace(q.Get("q")),
		Filters: make(map[string]string),
	}
	for _, key := range filterKeys {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			fp.Filters[key] = v
		}
	}
	return fp
}

// ParseListParams parses all list parameters.
func ParseListParams(q url.Values, sortCols []string, def SortParams, filterKeys []string) ListParams {
	return ListParams{
		PageParams:   ParsePageParams(q),
		SortParams:   ParseSortParams(q, sortCols, def),
		FilterParams: ParseFilterParams(q, filterKeys),
	}
}

// Values renders p back into query values, omitting defaults.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Search != "" {
		v.Set("q", p.Search)
	}
	for k, val := range p.Filters {
		v.Set(k, val)
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort)
		v.Set("dir", p.Dir)
	}
	if p.PerPage != 0 && p.PerPage != DefaultPerPage {
		v.Set("per_page", strconv.Itoa(p.PerPage))
	}
	if p.Page > 1 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	return v
}

// NewPageInfo computes pagination metadata.
// PRE: total >= 0
// POST: TotalPages >= 1; Page clamped to [1, TotalPages]
func NewPageInfo(page, perPage, total int) PageInfo {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	page = min(max(page, 1), totalPages)
	return PageInfo{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the index of the first row on the current page.
func (p PageInfo) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// StartRow returns the 1-indexed first row number, 0 when empty.
func (p PageInfo) StartRow() int {
	if p.Total == 0 {
		return 0
	}
	return p.Offset() + 1
}

// EndRow returns the 1-indexed last row number on the current page.
func (p PageInfo) EndRow() int {
	return min(p.Offset()+p.PerPage, p.Total)
}

// PageNumbers returns at most five page numbers centred on the current page.
func (p PageInfo) PageNumbers() []int {
	const maxButtons = 5
	start := max(p.Page-maxButtons/2, 1)
	end := start + maxButtons - 1
	if end > p.TotalPages {
		end = p.TotalPages
		start = max(end-maxButtons+1, 1)
	}
	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}

// ShowPagination reports whether there is more than one page.
func (p PageInfo) ShowPagination() bool {
	return p.Total > p.PerPage
}

// Paginate returns the slice of items on info's page.
// PRE: info was computed for len(items)
func Paginate[T any](items []T, info PageInfo) []T {
	start := min(info.Offset(), len(items))
	end := min(start+info.PerPage, len(items))
	return items[start:end]
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
