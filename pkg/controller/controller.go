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

package controller

import (
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/fnscale/fnscale/pkg/config"
	"github.com/fnscale/fnscale/pkg/controller/functionscaler"
)

// Controllers register an add function instead of being wired one by one in main.go.

var controllerAddFuncs []func(manager.Manager, config.RuntimeConfig) error

func init() {
	controllerAddFuncs = append(controllerAddFuncs, functionscaler.Add)
}

// SetupWithManager sets up every registered controller with the Manager.
func SetupWithManager(m manager.Manager, runtimeConfig config.RuntimeConfig) error {
	for _, f := range controllerAddFuncs {
		if err := f(m, runtimeConfig); err != nil {
			if kindMatchErr, ok := err.(*meta.NoKindMatchError); ok {
				klog.InfoS("Kind is not served by the cluster, its controller will perform noops!", "kind", kindMatchErr.GroupKind)
				continue
			}
			return err
		}
	}
	return nil
}
