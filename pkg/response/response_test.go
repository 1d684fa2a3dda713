package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPage(t *testing.T) {
	tests := []struct {
		name     string
		page     int
		pageSize int
		total    int64
		want     Page
	}{
		{
			name: "first of many", page: 1, pageSize: 20, total: 45,
			want: Page{CurrentPage: 1, PageSize: 20, TotalPages: 3, TotalRecords: 45, HasNext: true, HasPrevious: false},
		},
		{
			name: "middle", page: 2, pageSize: 20, total: 45,
			want: Page{CurrentPage: 2, PageSize: 20, TotalPages: 3, TotalRecords: 45, HasNext: true, HasPrevious: true},
		},
		{
			name: "last full page", page: 2, pageSize: 20, total: 40,
			want: Page{CurrentPage: 2, PageSize: 20, TotalPages: 2, TotalRecords: 40, HasNext: false, HasPrevious: true},
		},
		{
			name: "empty", page: 1, pageSize: 20, total: 0,
			want: Page{CurrentPage: 1, PageSize: 20, TotalPages: 0, TotalRecords: 0, HasNext: false, HasPrevious: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPage(tt.page, tt.pageSize, tt.total))
		})
	}
}
