package domain

import "time"

const (
	MinStars = 1
	MaxStars = 5
)

// Review is one submitted rating, kept as an append-only log entry.
type Review struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id,omitempty"`
	RaterID   string    `json:"rater_id"`
	RateeID   string    `json:"ratee_id"`
	Stars     int       `json:"stars"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the rating bounds and that nobody rates themselves.
func (r Review) Validate() error {
	if r.RateeID == "" || r.RaterID == "" {
		return Validation("rater and rated user are required")
	}
	if r.RaterID == r.RateeID {
		return Validation("users cannot rate themselves")
	}
	if r.Stars < MinStars || r.Stars > MaxStars {
		return Validation("stars must be between %d and %d", MinStars, MaxStars)
	}
	return nil
}

// RunningMean folds one more rating into an average over n ratings.
func RunningMean(current float64, n int, stars int) (float64, int) {
	if n <= 0 {
		return float64(stars), 1
	}
	next := n + 1
	return (current*float64(n) + float64(stars)) / float64(next), next
}
