package models

import "time"

// TimestampLayout is the format of Photo.CreatedAt: UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// CategoryAll is the filter value that matches every category. It is never persisted.
const CategoryAll = "all"

// Categories is the closed set of labels a photo may carry.
var Categories = []string{
	"Nature",
	"Architecture",
	"Portrait",
	"Travel",
	"Food",
	"Animals",
	"Art",
	"Other",
}

// IsCategory reports whether c is one of Categories.
func IsCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// Photo represents an uploaded image owned by a single user.
type Photo struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	CreatedAt   string `json:"createdAt"`
}

// Created parses CreatedAt. The zero time is returned for unparsable values.
func (p Photo) Created() time.Time {
	t, err := time.Parse(TimestampLayout, p.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatTimestamp renders t the way CreatedAt stores it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
