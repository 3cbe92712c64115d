package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vienna(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Vienna")
	if err != nil {
		return time.UTC
	}
	return loc
}

func TestParsePostingDate(t *testing.T) {
	loc := vienna(t)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"23. Dezember 2019, 10:51:00", time.Date(2019, 12, 23, 10, 51, 0, 0, loc)},
		{"2. Jänner 2020, 08:05:09", time.Date(2020, 1, 2, 8, 5, 9, 0, loc)},
		{"  3. März 2020,  17:00:00 ", time.Date(2020, 3, 3, 17, 0, 0, 0, loc)},
		{"14. Mai 2020, 23:59:59", time.Date(2020, 5, 14, 23, 59, 59, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePostingDate(tt.in, loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestParsePostingDateInvalid(t *testing.T) {
	_, err := parsePostingDate("gestern", time.UTC)
	assert.Error(t, err)
}

func TestParseArticleDate(t *testing.T) {
	got, err := parseArticleDate("3. Februar 2020, 12:45", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 2, 3, 12, 45, 0, 0, time.UTC), got)
}

func TestParseCommentDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"12/23/2019, 11:02:03 AM", time.Date(2019, 12, 23, 11, 2, 3, 0, time.UTC)},
		{"12/23/2019, 1:02:03 PM", time.Date(2019, 12, 23, 13, 2, 3, 0, time.UTC)},
		{"12/23/2019, 13:02:03 PM", time.Date(2019, 12, 23, 13, 2, 3, 0, time.UTC)},
		{"2/3/2020, 18:00:00", time.Date(2020, 2, 3, 18, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCommentDate(tt.in, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseCommentDate("yesterday", time.UTC)
	assert.Error(t, err)
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{" 42 ", 42, false},
		{"1,234", 1234, false},
		{"1.2K", 1200, false},
		{"3M", 3000000, false},
		{"viele", 0, true},
		{"1.5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
