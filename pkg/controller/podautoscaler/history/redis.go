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

package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"
)

const (
	defaultRedisTTL     = time.Hour
	defaultRedisTimeout = 2 * time.Second
)

// RedisStore keeps samples in one sorted set per key, scored by timestamp, so that
// several autoscaler replicas share the same stabilization memory. Redis failures
// are logged and read as an empty history.
type RedisStore struct {
	client   redis.Cmdable
	capacity int
	ttl      time.Duration
	timeout  time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on client. Keys expire ttl after their last sample;
// a non-positive ttl selects one hour.
func NewRedisStore(client redis.Cmdable, capacity int, ttl time.Duration) *RedisStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, capacity: capacity, ttl: ttl, timeout: defaultRedisTimeout}
}

func genKey(key string) string {
	return fmt.Sprintf("fnscale-history/%s", key)
}

// encodeMember makes members unique so equal samples at the same timestamp are all kept.
func encodeMember(ts int64, desired int) string {
	return fmt.Sprintf("%d:%d:%s", ts, desired, uuid.NewString())
}

func decodeMember(member string) (Sample, error) {
	parts := strings.SplitN(member, ":", 3)
	if len(parts) != 3 {
		return Sample{}, fmt.Errorf("malformed history member %q", member)
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("malformed timestamp in history member %q: %w", member, err)
	}
	desired, err := strconv.Atoi(parts[1])
	if err != nil {
		return Sample{}, fmt.Errorf("malformed replicas in history member %q: %w", member, err)
	}
	return Sample{Timestamp: ts, DesiredReplicas: desired}, nil
}

func (s *RedisStore) AddSample(key string, ts int64, desired int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	k := genKey(key)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(ts), Member: encodeMember(ts, desired)})
	pipe.ZRemRangeByRank(ctx, k, 0, int64(-s.capacity-1))
	pipe.Expire(ctx, k, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		klog.ErrorS(err, "Failed to record autoscale sample", "key", key, "timestamp", ts)
	}
}

func (s *RedisStore) GetSamples(key string, fromTs int64) []Sample {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	members, err := s.client.ZRangeByScore(ctx, genKey(key), &redis.ZRangeBy{
		Min: strconv.FormatInt(fromTs, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			klog.ErrorS(err, "Failed to read autoscale history", "key", key)
		}
		return []Sample{}
	}

	samples := make([]Sample, 0, len(members))
	for _, m := range members {
		sample, err := decodeMember(m)
		if err != nil {
			klog.V(4).InfoS("Skipping history member", "key", key, "error", err)
			continue
		}
		samples = append(samples, sample)
	}
	return samples
}

func (s *RedisStore) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, genKey(key)).Err(); err != nil {
		klog.ErrorS(err, "Failed to delete autoscale history", "key", key)
	}
}
