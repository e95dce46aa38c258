package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvResolver_Resolvable(t *testing.T) {
	t.Setenv("REFACTORCTL_TEST_PROVIDER_KEY", "sk-whatever")
	r := NewEnvResolver()
	assert.True(t, r.Resolvable("REFACTORCTL_TEST_PROVIDER_KEY"))
	assert.False(t, r.Resolvable("REFACTORCTL_DEFINITELY_UNSET_KEY"))
}
