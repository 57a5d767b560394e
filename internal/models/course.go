package models

import "time"

// Tier selects which of a course's prices applies to a purchase
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Course is a sellable unit of content. Prices are in minor currency units.
type Course struct {
	ID                int64     `json:"id"`
	Title             string    `json:"title"`
	Currency          string    `json:"currency"`
	PriceCents        int64     `json:"price_cents"`
	PremiumPriceCents int64     `json:"premium_price_cents"`
	CreatedAt         time.Time `json:"created_at"`
	Chapters          []Chapter `json:"chapters,omitempty"`
}

// PriceFor returns the price of the given tier. The second result is false
// for an unknown tier or a premium tier the course does not offer.
func (c *Course) PriceFor(tier Tier) (int64, bool) {
	switch tier {
	case "", TierStandard:
		return c.PriceCents, true
	case TierPremium:
		if c.PremiumPriceCents <= 0 {
			return 0, false
		}
		return c.PremiumPriceCents, true
	default:
		return 0, false
	}
}

// Lessons returns every lesson of the course in chapter then lesson order
func (c *Course) Lessons() []Lesson {
	var lessons []Lesson
	for _, ch := range c.Chapters {
		lessons = append(lessons, ch.Lessons...)
	}
	return lessons
}

// Chapter groups lessons within a course
type Chapter struct {
	ID       int64    `json:"id"`
	CourseID int64    `json:"course_id"`
	Position int      `json:"position"`
	Title    string   `json:"title"`
	Lessons  []Lesson `json:"lessons,omitempty"`
}

// Lesson is a single video lesson. CourseID is resolved through its chapter.
type Lesson struct {
	ID              int64  `json:"id"`
	ChapterID       int64  `json:"chapter_id"`
	CourseID        int64  `json:"course_id"`
	Position        int    `json:"position"`
	Title           string `json:"title"`
	DurationSeconds int    `json:"duration_seconds"`
	VideoRef        string `json:"video_ref,omitempty"`
}
