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

package utils

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"
)

const (
	EnvRedisAddr     = "FNSCALE_REDIS_ADDR"
	EnvRedisPassword = "FNSCALE_REDIS_PASSWORD"
	EnvRedisDB       = "FNSCALE_REDIS_DB"
)

// GetRedisClient connects to addr, falling back to FNSCALE_REDIS_ADDR when addr is empty.
// It returns nil when no address is configured.
func GetRedisClient(addr string) *redis.Client {
	if addr == "" {
		addr = LoadEnv(EnvRedisAddr, "")
	}
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: LoadEnv(EnvRedisPassword, ""),
		DB:       LoadEnvInt(EnvRedisDB, 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		klog.ErrorS(err, "Redis is not reachable yet, history will be empty until it is", "addr", addr)
	} else {
		klog.InfoS("Connected to redis", "addr", addr)
	}
	return client
}
