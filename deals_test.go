package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strptr(s string) *string { return &s }

func TestBuildDealUpdateAllFields(t *testing.T) {
	val := 250000.0
	prob := 80
	query, args := buildDealUpdate(dealInput{
		Stage:             strptr("negotiation"),
		Value:             &val,
		Probability:       &prob,
		ExpectedCloseDate: strptr("2026-10-01"),
	}, 7)

	assert.Equal(t,
		`UPDATE deals SET updated_at = NOW(), stage = $1, value = $2, probability = $3, expected_close_date = $4 WHERE id = $5 RETURNING id`,
		query)
	assert.Equal(t, []any{"negotiation", 250000.0, 80, "2026-10-01", int64(7)}, args)
}

func TestBuildDealUpdateStageOnly(t *testing.T) {
	query, args := buildDealUpdate(dealInput{Stage: strptr("closed_won")}, 3)

	assert.Equal(t,
		`UPDATE deals SET updated_at = NOW(), stage = $1 WHERE id = $2 RETURNING id`,
		query)
	assert.Equal(t, []any{"closed_won", int64(3)}, args)
}

// Corpo vazio ainda gera um UPDATE válido: só o updated_at muda.
func TestBuildDealUpdateNoFields(t *testing.T) {
	query, args := buildDealUpdate(dealInput{}, 9)

	assert.Equal(t, `UPDATE deals SET updated_at = NOW() WHERE id = $1 RETURNING id`, query)
	assert.Equal(t, []any{int64(9)}, args)
}

func TestBuildDealUpdateSkipsAbsentFields(t *testing.T) {
	prob := 0
	query, args := buildDealUpdate(dealInput{Probability: &prob}, 1)

	assert.Equal(t,
		`UPDATE deals SET updated_at = NOW(), probability = $1 WHERE id = $2 RETURNING id`,
		query)
	assert.Equal(t, []any{0, int64(1)}, args)
}
