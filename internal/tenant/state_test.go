package tenant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mcphub/internal/tenant"
)

func TestState_Lifecycle(t *testing.T) {
	assert := assert.New(t)

	s := tenant.NewState()

	_, ok := s.Active()
	assert.False(ok, "fresh state has no active tenant")

	s.SetActive("proj-a")
	project, ok := s.Active()
	assert.True(ok)
	assert.Equal("proj-a", project)

	// Setting again replaces the previous tenant.
	s.SetActive("proj-b")
	project, ok = s.Active()
	assert.True(ok)
	assert.Equal("proj-b", project)

	s.Clear()
	_, ok = s.Active()
	assert.False(ok)
}

func TestState_SetActiveEmptyClears(t *testing.T) {
	assert := assert.New(t)

	s := tenant.NewState()
	s.SetActive("proj-a")
	s.SetActive("")

	_, ok := s.Active()
	assert.False(ok)
}
