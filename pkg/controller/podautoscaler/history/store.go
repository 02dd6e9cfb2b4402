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

// Package history stores past replica recommendations per deployment. They are
// read back to compute stabilization windows.
package history

import (
	"sort"
	"sync"
)

// DefaultCapacity is the number of samples kept per key.
const DefaultCapacity = 1024

// Sample is one recorded recommendation.
type Sample struct {
	Timestamp       int64 `json:"timestampUnixSeconds"`
	DesiredReplicas int   `json:"desiredReplicas"`
}

// Store keeps an ordered, capacity bounded list of samples per key.
// Implementations must be safe for concurrent use and must not serialize unrelated keys.
type Store interface {
	// AddSample records a sample, evicting the oldest ones beyond capacity.
	AddSample(key string, ts int64, desired int)
	// GetSamples returns the samples with a timestamp >= fromTs in ascending order.
	GetSamples(key string, fromTs int64) []Sample
	// Delete drops all samples of key.
	Delete(key string)
}

type sampleList struct {
	mu      sync.Mutex
	samples []Sample
	deleted bool
}

// InMemoryStore is a Store with one lock per key.
type InMemoryStore struct {
	capacity int
	lists    sync.Map // string -> *sampleList
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a store keeping at most capacity samples per key.
// A non-positive capacity selects DefaultCapacity.
func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &InMemoryStore{capacity: capacity}
}

func (s *InMemoryStore) list(key string) *sampleList {
	if l, ok := s.lists.Load(key); ok {
		return l.(*sampleList)
	}
	l, _ := s.lists.LoadOrStore(key, &sampleList{})
	return l.(*sampleList)
}

func (s *InMemoryStore) AddSample(key string, ts int64, desired int) {
	sample := Sample{Timestamp: ts, DesiredReplicas: desired}
	for !s.addTo(s.list(key), sample) {
	}
}

// addTo appends sample to l. It returns false when l was deleted after it was
// loaded, in which case the caller must load the key again.
func (s *InMemoryStore) addTo(l *sampleList, sample Sample) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deleted {
		return false
	}

	n := len(l.samples)
	if n == 0 || l.samples[n-1].Timestamp <= sample.Timestamp {
		l.samples = append(l.samples, sample)
	} else {
		// keep ascending order for out of order timestamps
		i := sort.Search(n, func(i int) bool { return l.samples[i].Timestamp > sample.Timestamp })
		l.samples = append(l.samples, Sample{})
		copy(l.samples[i+1:], l.samples[i:])
		l.samples[i] = sample
	}

	if excess := len(l.samples) - s.capacity; excess > 0 {
		l.samples = append(l.samples[:0:0], l.samples[excess:]...)
	}
	return true
}

func (s *InMemoryStore) GetSamples(key string, fromTs int64) []Sample {
	v, ok := s.lists.Load(key)
	if !ok {
		return []Sample{}
	}
	l := v.(*sampleList)
	l.mu.Lock()
	defer l.mu.Unlock()

	i := sort.Search(len(l.samples), func(i int) bool { return l.samples[i].Timestamp >= fromTs })
	out := make([]Sample, len(l.samples)-i)
	copy(out, l.samples[i:])
	return out
}

// Delete removes key under the list lock so that a concurrent AddSample either
// lands before the delete or in a fresh list.
func (s *InMemoryStore) Delete(key string) {
	v, ok := s.lists.Load(key)
	if !ok {
		return
	}
	l := v.(*sampleList)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleted = true
	l.samples = nil
	s.lists.CompareAndDelete(key, l)
}

// Keys returns the keys currently holding samples.
func (s *InMemoryStore) Keys() []string {
	var keys []string
	s.lists.Range(func(k, _ interface{}) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}
