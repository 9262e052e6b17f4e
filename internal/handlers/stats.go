package handlers

import "photo-gallery/internal/models"

// CategoryStat counts a user's photos in one category.
type CategoryStat struct {
	Category      string
	Count         int
	Percentage    float64
	CategoryStyle CategoryStyle
}

// categoryStats returns the non-empty categories of list in the canonical
// category order, with their share of the total.
func categoryStats(list []models.Photo) []CategoryStat {
	counts := make(map[string]int, len(models.Categories))
	for _, p := range list {
		counts[p.Category]++
	}

	total := len(list)
	stats := make([]CategoryStat, 0, len(counts))
	for _, c := range models.Categories {
		n := counts[c]
		if n == 0 {
			continue
		}
		percentage := 0.0
		if total > 0 {
			percentage = float64(n) / float64(total) * 100
		}
		stats = append(stats, CategoryStat{
			Category:      c,
			Count:         n,
			Percentage:    percentage,
			CategoryStyle: getCategoryStyle(c),
		})
	}
	return stats
}
