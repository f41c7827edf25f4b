package faultinject

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide_Deterministic(t *testing.T) {
	profile, err := ParseProfile("harsh")
	assert.NoError(t, err)

	a := New(42, profile)
	b := New(42, profile)
	for i := 0; i < 500; i++ {
		opID := fmt.Sprintf("event:evt-%d", i)
		for attempt := 1; attempt <= 3; attempt++ {
			assert.Equal(t, a.Decide(opID, attempt), b.Decide(opID, attempt),
				"same (seed, op, attempt, profile) must decide identically")
		}
	}
}

func TestDecide_NoneProfileNeverFaults(t *testing.T) {
	profile, err := ParseProfile("none")
	assert.NoError(t, err)

	inj := New(7, profile)
	for i := 0; i < 200; i++ {
		assert.Equal(t, FaultNone, inj.Decide(fmt.Sprintf("op-%d", i), 1))
	}
}

func TestDecide_SeedChangesDecisions(t *testing.T) {
	profile, err := ParseProfile("harsh")
	assert.NoError(t, err)

	a := New(1, profile)
	b := New(2, profile)
	diverged := false
	for i := 0; i < 1000 && !diverged; i++ {
		opID := fmt.Sprintf("op-%d", i)
		if a.Decide(opID, 1) != b.Decide(opID, 1) {
			diverged = true
		}
	}
	assert.True(t, diverged, "different seeds should diverge somewhere")
}

func TestDecide_HarshProfileFaultsSometimes(t *testing.T) {
	profile, err := ParseProfile("harsh")
	assert.NoError(t, err)

	inj := New(42, profile)
	faults := 0
	for i := 0; i < 1000; i++ {
		if inj.Decide(fmt.Sprintf("op-%d", i), 1) != FaultNone {
			faults++
		}
	}
	// ~20% combined fault rate; just assert it is neither silent nor wild.
	assert.Greater(t, faults, 50)
	assert.Less(t, faults, 500)
}

func TestParseProfile_Unknown(t *testing.T) {
	_, err := ParseProfile("chaotic")
	assert.Error(t, err)
}
