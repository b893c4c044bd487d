package tabular

// Paginator slices one page off a query. Page size is fixed per entity by
// configuration, not client-controlled; only the page number comes from
// the request. Pages are 1-based, with 0 and absent treated as the first
// page. Requesting a page past the last yields an empty slice.
type Paginator struct {
	PageSize int
}

func (p Paginator) Paginate(q Query, page int) Query {
	if page < 1 {
		page = 1
	}
	return q.Slice((page-1)*p.PageSize, p.PageSize)
}
