/*
Copyright 2025 The Fnscale Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package algorithm provides the building blocks of a scaling decision: the HPA
// replica formula, policy based rate limiting and stabilization windows.
// Every function is pure and safe for concurrent use.
package algorithm

// Direction is the direction of a scaling decision.
type Direction string

const (
	DirectionNone Direction = "none"
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// DirectionOf returns the direction of moving from current to desired replicas.
func DirectionOf(current, desired int) Direction {
	switch {
	case desired > current:
		return DirectionUp
	case desired < current:
		return DirectionDown
	default:
		return DirectionNone
	}
}

// Clamp bounds value to [minReplicas, maxReplicas]. A nil maxReplicas leaves the
// value unbounded above; when maxReplicas < minReplicas the upper bound wins.
func Clamp(value, minReplicas int, maxReplicas *int) int {
	if value < minReplicas {
		value = minReplicas
	}
	if maxReplicas != nil && value > *maxReplicas {
		value = *maxReplicas
	}
	return value
}
