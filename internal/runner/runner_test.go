package runner

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmit_RunsJob(t *testing.T) {
	r := New()

	var ran atomic.Bool
	id := r.Submit("test", func(ctx context.Context) {
		ran.Store(true)
	})
	r.Wait()

	assert.True(t, ran.Load())
	assert.Len(t, id, 26, "job ids are ULIDs")
}

func TestSubmit_UniqueJobIDs(t *testing.T) {
	r := New()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := r.Submit("noop", func(ctx context.Context) {})
		assert.False(t, seen[id], "duplicate job id: %s", id)
		seen[id] = true
	}
	r.Wait()
}

func TestSubmit_RecoversPanic(t *testing.T) {
	r := New()

	var after atomic.Bool
	r.Submit("panics", func(ctx context.Context) {
		panic("boom")
	})
	r.Submit("survives", func(ctx context.Context) {
		after.Store(true)
	})
	r.Wait()

	assert.True(t, after.Load(), "a panicking job must not affect others")
}
