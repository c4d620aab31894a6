/*
 * Copyright 2025 The Yorkie Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

// The target ids of the local store are even, and the ids of limbo
// resolution targets, which the local store never sees, are odd.
const (
	localStoreGeneratorID = 0
	syncEngineGeneratorID = 1

	reservedBits = 1
)

// TargetIDGenerator generates the target ids of one id space.
type TargetIDGenerator struct {
	generatorID int
	nextID      int
}

// NewTargetIDGenerator creates a generator of ids whose lowest bit is
// generatorID, starting after the id after.
func NewTargetIDGenerator(generatorID int, after int) *TargetIDGenerator {
	g := &TargetIDGenerator{generatorID: generatorID}
	g.seek(after)
	return g
}

// NewLimboTargetIDGenerator creates the generator of the ids of limbo
// resolution targets.
func NewLimboTargetIDGenerator() *TargetIDGenerator {
	return NewTargetIDGenerator(syncEngineGeneratorID, 0)
}

// Next returns a new target id.
func (g *TargetIDGenerator) Next() int {
	id := g.nextID
	g.nextID += 1 << reservedBits
	return id
}

func (g *TargetIDGenerator) seek(after int) {
	mask := (1 << reservedBits) - 1
	next := (after &^ mask) + g.generatorID
	if next <= after {
		next += 1 << reservedBits
	}
	g.nextID = next
}
