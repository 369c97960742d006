package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainedPoolReuse(t *testing.T) {
	p := NewContainedPool("")

	a := &CreqController{name: "a"}
	b := &CreqController{name: "b"}
	p.Put(a)
	p.Put(b)

	got, err := p.Get(context.Background())
	assert.NoError(t, err)
	assert.Same(t, b, got, "most recently returned controller is reused first")

	got2, err := p.Get(context.Background())
	assert.NoError(t, err)
	assert.Same(t, a, got2)

	p.Put(a)
	p.Close()
	assert.Empty(t, p.idle)
}
