package criteria

// Results is one window of a list or page query.
// Total is only populated by paging queries; Data never holds the lookahead row.
type Results[T any] struct {
	Offset int  `msgpack:"offset"`
	Limit  int  `msgpack:"limit"`
	Total  int  `msgpack:"total"`
	Data   []T  `msgpack:"data"`
	More   bool `msgpack:"more"`
}

// NewListResults trims a lookahead row fetched past limit and records whether it existed.
func NewListResults[T any](offset, limit int, rows []T) Results[T] {
	res := Results[T]{Offset: offset, Limit: limit, Data: rows}
	if limit != Unlimited && len(rows) > limit {
		res.Data = rows[:limit]
		res.More = true
	}
	if res.Data == nil {
		res.Data = []T{}
	}
	return res
}

// NewPageResults builds a page from an explicit total count.
func NewPageResults[T any](offset, limit, total int, rows []T) Results[T] {
	if rows == nil {
		rows = []T{}
	}
	return Results[T]{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Data:   rows,
		More:   limit != Unlimited && offset+len(rows) < total,
	}
}

// HasNext reports whether rows exist past this window.
func (r Results[T]) HasNext() bool {
	return r.More
}

// Len returns the number of rows in the window.
func (r Results[T]) Len() int {
	return len(r.Data)
}
