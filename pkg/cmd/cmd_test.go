package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct {
	name string
	runs int
}

func (e *echo) Name() string        { return e.name }
func (e *echo) Description() string { return "echo " + e.name }
func (e *echo) Run(ctx context.Context, inv *Invocation) error {
	e.runs++
	return nil
}

func TestApplyOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(c Command) Command {
			return Wrap(c, func(ctx context.Context, inv *Invocation) error {
				order = append(order, name)
				return c.Run(ctx, inv)
			})
		}
	}

	inner := &echo{name: "play"}
	c := Apply(inner, tag("inner"), tag("outer"))

	require.NoError(t, c.Run(context.Background(), &Invocation{}))
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, 1, inner.runs)
	assert.Equal(t, "play", c.Name())
	assert.Same(t, inner, Root(c))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&echo{name: "skip"})
	r.Register(&echo{name: "play"})
	r.Register(&echo{name: "help"})

	var names []string
	for _, c := range r.GetAll() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"help", "play", "skip"}, names)
	assert.NotNil(t, r.Get("play"))
	assert.Nil(t, r.Get("stop"))
}
