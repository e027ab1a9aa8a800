// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import (
	"encoding/json"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomValue returns a random JSON-compatible value
func randomValue(rng *rand.Rand, depth int) interface{} {
	kind := rng.Intn(7)
	if depth > 2 && kind >= 5 {
		kind = rng.Intn(5)
	}
	switch kind {
	case 0:
		return rng.Intn(10) - 2
	case 1:
		return rng.Float64() * 10
	case 2:
		return []string{"RLY", "LED", "BUT", "", "ER: x", "?"}[rng.Intn(6)]
	case 3:
		return rng.Intn(2) == 1
	case 4:
		return nil
	case 5:
		items := make([]interface{}, rng.Intn(4))
		for i := range items {
			items[i] = randomValue(rng, depth+1)
		}
		return items
	default:
		return randomEntry(rng, depth+1)
	}
}

// randomEntry returns a device-entry-shaped object with random field types
func randomEntry(rng *rand.Rand, depth int) map[string]interface{} {
	m := map[string]interface{}{}
	for _, key := range []string{KeyDeviceID, KeyDeviceType, KeyDeviceConfig, KeyDeviceState} {
		switch rng.Intn(4) {
		case 0:
			// omitted
		case 1:
			m[key] = randomValue(rng, depth+1)
		default:
			if key == KeyDeviceID {
				m[key] = 1 + rng.Intn(4)
			} else {
				m[key] = []string{"RLY", "LED", "BUT"}[rng.Intn(3)]
			}
		}
	}
	return m
}

// randomMessage returns a mostly well-formed coordinator message
func randomMessage(rng *rand.Rand, pid uint32) []byte {
	m := map[string]interface{}{
		KeySourceNode: 1,
		KeyTargetNode: 4 + rng.Intn(2),
		KeyPacketID:   pid,
		KeyUptime:     rng.Intn(100000),
	}
	for _, key := range []string{KeySourceNode, KeyTargetNode, KeyPacketID, KeyUptime, KeyCommand} {
		if rng.Intn(20) == 0 {
			m[key] = randomValue(rng, 0)
		}
		if rng.Intn(30) == 0 {
			delete(m, key)
		}
	}
	for _, key := range []string{KeyActivation, KeyTrigger} {
		if rng.Intn(2) == 0 {
			continue
		}
		items := make([]interface{}, rng.Intn(4))
		for i := range items {
			items[i] = randomEntry(rng, 1)
		}
		m[key] = items
		if rng.Intn(15) == 0 {
			m[key] = randomValue(rng, 0)
		}
	}

	data, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return data
}

func newFuzzNode(t *testing.T) *EndNode {
	t.Helper()
	n, err := New(Config{
		ID: 4,
		ActivationDevices: []*ActivationDevice{
			NewActivationDeviceWithDriver("RLY", &testDriver{state: "0"}),
			NewActivationDeviceWithDriver("LED", &testDriver{state: "0", setErr: "flaky"}),
		},
		TriggerDevices: []*TriggerDevice{
			NewTriggerDeviceWithDriver("BUT", &testDriver{state: "1"}),
			NewTriggerDevice("BUT", nil, nil),
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n
}

// TestFuzz_ParseNeverPanics feeds random and mutated messages through Parse
// and checks the sequence invariants hold
func TestFuzz_ParseNeverPanics(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	n := newFuzzNode(t)

	pid := uint32(0)
	for i := 0; i < rounds; i++ {
		// Mostly advance, sometimes repeat or jump
		switch rng.Intn(10) {
		case 0:
		case 1:
			pid += uint32(rng.Intn(5))
		default:
			pid++
		}

		var payload []byte
		if rng.Intn(10) == 0 {
			payload = make([]byte, rng.Intn(32))
			rng.Read(payload)
		} else {
			payload = randomMessage(rng, pid)
		}

		before := n.LastSequence()
		err := n.ParseBytes(payload)

		if n.LastSequence() < before {
			t.Fatalf("round %d: LastSequence() decreased %d -> %d", i, before, n.LastSequence())
		}
		if KindOf(err) == KindDuplicate && n.LastSequence() != before {
			t.Fatalf("round %d: duplicate changed LastSequence() %d -> %d", i, before, n.LastSequence())
		}
		if err != nil && !IsFailure(Sentinel(err)) {
			t.Fatalf("round %d: Sentinel(%v) missing failure prefix", i, err)
		}

		if rng.Intn(3) == 0 || n.AnySendRequested() {
			out := n.Build(rng.Intn(5) == 0)
			if _, err := DecodeMessage(JSONCodec{}, []byte(out)); err != nil {
				t.Fatalf("round %d: Build() produced undecodable output %s: %v", i, out, err)
			}
		}
	}
}

// TestFuzz_BuildAllClearsRequests checks Build(true) after random traffic
func TestFuzz_BuildAllClearsRequests(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds() / 10
	n := newFuzzNode(t)

	for i := 0; i < rounds; i++ {
		_ = n.ParseBytes(randomMessage(rng, uint32(i+1)))

		msg := n.BuildMessage(true)
		if len(msg.AL) != len(n.ActivationDevices()) || len(msg.TL) != len(n.TriggerDevices()) {
			t.Fatalf("round %d: BuildMessage(true) AL=%d TL=%d", i, len(msg.AL), len(msg.TL))
		}
		if n.AnySendRequested() {
			t.Fatalf("round %d: Build(true) left a pending send", i)
		}
	}
}
