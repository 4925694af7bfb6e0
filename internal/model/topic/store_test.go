package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedIsClosedCatalogue(t *testing.T) {
	ids := make([]string, 0)
	for _, item := range Seed() {
		ids = append(ids, item.ID)
		assert.NotEmpty(t, item.Label)
		assert.NotEmpty(t, item.Instruction)
	}
	assert.Equal(t, []string{General, Spouse, ParentChild, Sibling, InLaws, Divorce}, ids)
}

func TestMemoryStoreFindByID(t *testing.T) {
	store := NewMemoryStore(Seed())

	got, ok := store.FindByID(Spouse)
	require.True(t, ok)
	assert.Equal(t, "부부/배우자 갈등", got.Label)

	_, ok = store.FindByID("quiz")
	assert.False(t, ok)
}

func TestMemoryStoreListIsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	list := store.List()
	list[0].Label = "changed"

	got, _ := store.FindByID(General)
	assert.Equal(t, "일반적인 고민", got.Label)
}

func TestGreetingMentionsTopicLabel(t *testing.T) {
	greeting := Greeting(Seed()[1])
	assert.Contains(t, greeting, "'부부/배우자 갈등' 문제로 찾아오셨군요")
}
