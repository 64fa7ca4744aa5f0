package core

import "math"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxPageNumber keeps the offset of any page within an int32.
	MaxPageNumber = math.MaxInt32 / MaxPageSize
)

// Page selects a window of a result list. Numbers start at 1.
type Page struct {
	Number int
	Size   int
}

// Clean resets out of range values to their defaults.
func (p Page) Clean() Page {
	if p.Number < 1 {
		p.Number = 1
	} else if p.Number > MaxPageNumber {
		p.Number = MaxPageNumber
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	} else if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	p = p.Clean()
	return (p.Number - 1) * p.Size
}

func (p Page) Limit() int {
	return p.Clean().Size
}

// Bounds returns the [start, end) slice bounds of the Page within a list of `total` items.
func (p Page) Bounds(total int) (int, int) {
	start := p.Offset()
	if start < 0 || start > total {
		start = total
	}
	end := start + p.Limit()
	if end > total {
		end = total
	}
	return start, end
}

// PageResult is a page of results along with the total number of matches.
type PageResult struct {
	Count    int         `json:"count"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Results  interface{} `json:"results"`
}

func NewPageResult(p Page, count int, results interface{}) PageResult {
	p = p.Clean()
	return PageResult{Count: count, Page: p.Number, PageSize: p.Size, Results: results}
}
