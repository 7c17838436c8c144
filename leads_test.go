package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Entrega repetida do mesmo evento nunca escreve, mesmo que o email do
// candidato também case com um lead existente.
func TestPlanLeadUpsertRepeatedDeliveryIsNoop(t *testing.T) {
	cand := leadCandidate{Email: "maria@example.com"}
	assert.Equal(t, upsertNoop, planLeadUpsert(true, cand, true))
	assert.Equal(t, upsertNoop, planLeadUpsert(true, leadCandidate{}, false))
}

func TestPlanLeadUpsertAttachesToExistingEmail(t *testing.T) {
	cand := leadCandidate{Email: "maria@example.com"}
	assert.Equal(t, upsertAttach, planLeadUpsert(false, cand, true))
}

func TestPlanLeadUpsertInsertsWhenEmailUnknown(t *testing.T) {
	cand := leadCandidate{Email: "nova@example.com"}
	assert.Equal(t, upsertInsert, planLeadUpsert(false, cand, false))
}

// Sem email no candidato não há merge possível; sempre insere.
func TestPlanLeadUpsertNoEmailNeverAttaches(t *testing.T) {
	assert.Equal(t, upsertInsert, planLeadUpsert(false, leadCandidate{}, true))
}
