package types

import "time"

// Difficulty indicates the physical difficulty level of a tour.
type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyMedium    Difficulty = "medium"
	DifficultyDifficult Difficulty = "difficult"
)

// ValidDifficulty reports whether d is one of the known difficulty levels.
func ValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyDifficult:
		return true
	}
	return false
}

// Tour represents a bookable tour offering.
// It contains descriptive metadata, pricing, and an optional reference to a
// cover image held in object storage.
type Tour struct {
	// ID is the unique identifier of the tour.
	ID int `json:"id" db:"id"`

	// Name is the human-readable name of the tour.
	Name string `json:"name" db:"name"`

	// Summary is a short description shown in listings.
	Summary string `json:"summary" db:"summary"`

	// Description contains the full tour description.
	Description string `json:"description" db:"description"`

	// Duration is the length of the tour in days.
	Duration int `json:"duration" db:"duration"`

	// MaxGroupSize is the maximum number of participants.
	MaxGroupSize int `json:"max_group_size" db:"max_group_size"`

	// Difficulty indicates the physical difficulty level of the tour.
	Difficulty Difficulty `json:"difficulty" db:"difficulty"`

	// Price is the price per participant, in the smallest currency unit.
	Price int64 `json:"price" db:"price"`

	// CoverImageKey is the object-storage key of the tour's cover image,
	// empty when no cover has been uploaded.
	CoverImageKey string `json:"cover_image_key,omitempty" db:"cover_image_key"`

	// CreatedAt is the timestamp at which the tour was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the tour.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
