package quarry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexEntryValidate(t *testing.T) {
	t.Run("valid entry", func(t *testing.T) {
		entry := IndexEntry{
			Name:       "a_1_idx",
			KeyPattern: KeyPattern{{Field: "a", Order: 1}},
		}
		assert.NoError(t, entry.Validate())
	})
	t.Run("missing name", func(t *testing.T) {
		entry := IndexEntry{
			KeyPattern: KeyPattern{{Field: "a", Order: 1}},
		}
		assert.Error(t, entry.Validate())
	})
	t.Run("empty key pattern", func(t *testing.T) {
		entry := IndexEntry{Name: "bad"}
		assert.Error(t, entry.Validate())
	})
	t.Run("invalid order", func(t *testing.T) {
		entry := IndexEntry{
			Name:       "bad",
			KeyPattern: KeyPattern{{Field: "a", Order: 2}},
		}
		assert.Error(t, entry.Validate())
	})
}
