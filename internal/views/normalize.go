package views

import (
	"strings"

	"github.com/xtrntr/ledgerview/internal/models"
)

// normalize makes account cache keys case-insensitive like Address.Equal
func normalize(account models.Address) string {
	return strings.ToLower(string(account))
}
