package role

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	r, err := Parse("viewer")
	assert.NoError(t, err)
	assert.Equal(t, Viewer, r)

	r, err = Parse("editor")
	assert.NoError(t, err)
	assert.Equal(t, Editor, r)

	r, err = Parse("owner")
	assert.NoError(t, err)
	assert.Equal(t, Owner, r)

	_, err = Parse("admin")
	assert.Error(t, err)
}

func TestMeets_Ordering(t *testing.T) {
	// viewer(0) < editor(1) < owner(2)
	assert.True(t, Viewer.Meets(Viewer))
	assert.False(t, Viewer.Meets(Editor))
	assert.False(t, Viewer.Meets(Owner))

	assert.True(t, Editor.Meets(Viewer))
	assert.True(t, Editor.Meets(Editor))
	assert.False(t, Editor.Meets(Owner))

	assert.True(t, Owner.Meets(Viewer))
	assert.True(t, Owner.Meets(Editor))
	assert.True(t, Owner.Meets(Owner))
}

func TestString_RoundTrip(t *testing.T) {
	for _, r := range []Role{Viewer, Editor, Owner} {
		parsed, err := Parse(r.String())
		assert.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
}
