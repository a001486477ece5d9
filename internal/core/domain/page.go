package domain

import "strings"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var sortableProductFields = map[string]string{
	"title":     "title",
	"price":     "price",
	"category":  "category",
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
}

type PageRequest struct {
	Number   int
	Size     int
	SortBy   string
	SortDesc bool
}

// NewPageRequest clamps number and size and parses a "field[,asc|desc]"
// sort expression. Unknown sort fields fall back to creation order.
func NewPageRequest(number, size int, sort string) PageRequest {
	if number < 0 {
		number = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	pr := PageRequest{Number: number, Size: size, SortBy: "createdAt"}
	if sort == "" {
		return pr
	}

	field, dir, _ := strings.Cut(sort, ",")
	if f, ok := sortableProductFields[strings.TrimSpace(field)]; ok {
		pr.SortBy = f
	}
	pr.SortDesc = strings.EqualFold(strings.TrimSpace(dir), "desc")
	return pr
}

func (p PageRequest) Offset() int64 {
	return int64(p.Number) * int64(p.Size)
}

type PageMeta struct {
	Size          int   `json:"size"`
	Number        int   `json:"number"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

type Page[T any] struct {
	Content []T      `json:"content"`
	Page    PageMeta `json:"page"`
}

func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content: content,
		Page: PageMeta{
			Size:          req.Size,
			Number:        req.Number,
			TotalElements: total,
			TotalPages:    pages,
		},
	}
}

// MapPage converts page content while keeping the metadata.
func MapPage[T, R any](p Page[T], fn func(T) R) Page[R] {
	out := make([]R, 0, len(p.Content))
	for _, item := range p.Content {
		out = append(out, fn(item))
	}
	return Page[R]{Content: out, Page: p.Page}
}
