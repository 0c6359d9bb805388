package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("pet.created"))
	assert.True(t, IsValid("test.ping"))
	assert.False(t, IsValid("bogus.event"))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("pet.created ")) // no trimming
}

func TestValidate(t *testing.T) {
	ok, invalid := Validate([]string{"pet.created", "appointment.cancelled"})
	assert.True(t, ok)
	assert.Empty(t, invalid)

	ok, invalid = Validate([]string{"pet.created", "bogus.event", "also.bogus"})
	assert.False(t, ok)
	assert.Equal(t, []string{"bogus.event", "also.bogus"}, invalid)

	ok, invalid = Validate(nil)
	assert.True(t, ok)
	assert.Empty(t, invalid)
}

func TestDescriptionAndCategoryUnknown(t *testing.T) {
	assert.Empty(t, Description(Type("nope")))
	assert.Empty(t, Category(Type("nope")))

	assert.NotEmpty(t, Description(SaleCompleted))
	assert.Equal(t, CategoryBilling, Category(InvoicePaid))
}

func TestCategoriesPartitionCatalog(t *testing.T) {
	seen := make(map[Type]int)
	for _, types := range Categories() {
		for _, typ := range types {
			seen[typ]++
		}
	}

	all := All()
	assert.Len(t, seen, len(all))
	for _, typ := range all {
		assert.Equal(t, 1, seen[typ], "event %q must appear in exactly one category", typ)
	}
}

func TestCategoriesReturnsCopy(t *testing.T) {
	first := Categories()
	first[CategoryPets] = append(first[CategoryPets], Type("mutated.event"))

	assert.NotContains(t, Categories()[CategoryPets], Type("mutated.event"))
}
