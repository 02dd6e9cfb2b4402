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

package promql

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

type bucket struct {
	upperBound float64
	count      float64
}

// bucketQuantile estimates the phi quantile from cumulative counts keyed by their upper bound.
// Keys that are not numbers (other than +Inf) are ignored.
func bucketQuantile(phi float64, counts map[string]float64) float64 {
	buckets := make([]bucket, 0, len(counts))
	for le, count := range counts {
		if strings.EqualFold(le, "+Inf") {
			buckets = append(buckets, bucket{upperBound: math.Inf(1), count: count})
			continue
		}
		ub, err := strconv.ParseFloat(le, 64)
		if err != nil {
			continue
		}
		buckets = append(buckets, bucket{upperBound: ub, count: count})
	}
	if len(buckets) == 0 {
		return math.NaN()
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].upperBound < buckets[j].upperBound })

	rank := phi * buckets[len(buckets)-1].count
	prevBound, prevCount := 0.0, 0.0
	for _, b := range buckets {
		if b.count >= rank {
			if math.IsInf(b.upperBound, 1) {
				return prevBound
			}
			inBucket := b.count - prevCount
			if inBucket <= 0 {
				return b.upperBound
			}
			return prevBound + (b.upperBound-prevBound)*(rank-prevCount)/inBucket
		}
		prevBound, prevCount = b.upperBound, b.count
	}
	return buckets[len(buckets)-1].upperBound
}
