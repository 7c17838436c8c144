package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v int64) *int64 { return &v }

func TestPickNextUserAdvances(t *testing.T) {
	next, ok := pickNextUser([]int64{1, 2, 3}, ptr(2))
	assert.True(t, ok)
	assert.Equal(t, int64(3), next)
}

func TestPickNextUserWrapsAround(t *testing.T) {
	next, ok := pickNextUser([]int64{1, 2, 3}, ptr(3))
	assert.True(t, ok)
	assert.Equal(t, int64(1), next)
}

func TestPickNextUserNoCursorStartsAtFirst(t *testing.T) {
	next, ok := pickNextUser([]int64{7, 8}, nil)
	assert.True(t, ok)
	assert.Equal(t, int64(7), next)
}

func TestPickNextUserRemovedCursorResetsToStart(t *testing.T) {
	// usuário 5 saiu da lista: o cursor reinicia no índice 0
	next, ok := pickNextUser([]int64{1, 2, 3}, ptr(5))
	assert.True(t, ok)
	assert.Equal(t, int64(1), next)
}

func TestPickNextUserEmptyList(t *testing.T) {
	_, ok := pickNextUser(nil, ptr(1))
	assert.False(t, ok)

	_, ok = pickNextUser([]int64{}, nil)
	assert.False(t, ok)
}

func TestPickNextUserSingleUser(t *testing.T) {
	next, ok := pickNextUser([]int64{42}, ptr(42))
	assert.True(t, ok)
	assert.Equal(t, int64(42), next)
}
