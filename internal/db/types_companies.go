package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Company represents a canonical company record
type Company struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	NameNormalized string    `json:"name_normalized"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizeName folds a company or city name for case-insensitive matching.
// Diacritics are kept: "Łódź" and "Lodz" are different cities as far as the store knows.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
