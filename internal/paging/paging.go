// Package paging normalizes page/perPage query parameters into store offsets.
package paging

const (
	DefaultSize = 10
	MaxSize     = 100
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps the page to sane bounds: page >= 1, 1 <= size <= MaxSize.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultSize
	}
	if p.Size > MaxSize {
		p.Size = MaxSize
	}
	return p
}

// Offset returns the number of records to skip.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Size
}

// Limit returns the number of records to fetch.
func (p Page) Limit() int {
	return p.Normalize().Size
}

// TotalPages computes how many pages of p.Size hold total records.
func (p Page) TotalPages(total int) int {
	size := p.Normalize().Size
	if total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
