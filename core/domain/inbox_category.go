package domain

import (
	"time"

	"github.com/google/uuid"
)

// UncategorizedName is the display name used for emails without a category.
const UncategorizedName = "Uncategorized"

// Category is a user-defined bucket for incoming mail. The description is
// free-form guidance consumed by the classifier, not shown logic.
type Category struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
