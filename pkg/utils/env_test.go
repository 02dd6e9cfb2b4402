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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("FNSCALE_TEST_STRING", "value")
	t.Setenv("FNSCALE_TEST_BLANK", "  ")
	assert.Equal(t, "value", LoadEnv("FNSCALE_TEST_STRING", "default"))
	assert.Equal(t, "default", LoadEnv("FNSCALE_TEST_BLANK", "default"))
	assert.Equal(t, "default", LoadEnv("FNSCALE_TEST_UNSET", "default"))
}

func TestLoadEnvTyped(t *testing.T) {
	t.Setenv("FNSCALE_TEST_INT", "42")
	t.Setenv("FNSCALE_TEST_BAD_INT", "forty")
	t.Setenv("FNSCALE_TEST_BOOL", "true")
	t.Setenv("FNSCALE_TEST_BAD_BOOL", "sometimes")
	t.Setenv("FNSCALE_TEST_SECONDS", "30")
	t.Setenv("FNSCALE_TEST_DURATION", "1m30s")
	t.Setenv("FNSCALE_TEST_BAD_DURATION", "soon")

	assert.Equal(t, 42, LoadEnvInt("FNSCALE_TEST_INT", 1))
	assert.Equal(t, 1, LoadEnvInt("FNSCALE_TEST_BAD_INT", 1))
	assert.Equal(t, 7, LoadEnvInt("FNSCALE_TEST_UNSET", 7))

	assert.True(t, LoadEnvBool("FNSCALE_TEST_BOOL", false))
	assert.True(t, LoadEnvBool("FNSCALE_TEST_BAD_BOOL", true))
	assert.False(t, LoadEnvBool("FNSCALE_TEST_UNSET", false))

	assert.Equal(t, 30*time.Second, LoadEnvDuration("FNSCALE_TEST_SECONDS", time.Second))
	assert.Equal(t, 90*time.Second, LoadEnvDuration("FNSCALE_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, LoadEnvDuration("FNSCALE_TEST_BAD_DURATION", time.Second))
}

func TestGetRedisClientWithoutAddress(t *testing.T) {
	t.Setenv(EnvRedisAddr, "")
	assert.Nil(t, GetRedisClient(""))
}
