package repositories

import "testing"

func TestNewListOptions(t *testing.T) {
	cases := []struct {
		name          string
		page, perPage int
		wantOffset    int
		wantLimit     int
	}{
		{"first page default size", 1, 20, 0, 20},
		{"second page", 2, 20, 20, 20},
		{"zero page clamps to first", 0, 20, 0, 20},
		{"negative page clamps to first", -5, 20, 0, 20},
		{"zero per-page clamps to default", 1, 0, 0, 20},
		{"per-page above max clamps to 100", 1, 500, 0, 100},
		{"third page with clamped per-page", 3, 500, 200, 100},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			opts := NewListOptions(c.page, c.perPage)
			if opts.Offset != c.wantOffset {
				t.Errorf("Offset = %d, want %d", opts.Offset, c.wantOffset)
			}
			if opts.Limit != c.wantLimit {
				t.Errorf("Limit = %d, want %d", opts.Limit, c.wantLimit)
			}
			if opts.OrderBy != "created_at" || opts.Order != "desc" {
				t.Errorf("default ordering = %s %s, want created_at desc", opts.OrderBy, opts.Order)
			}
		})
	}
}
