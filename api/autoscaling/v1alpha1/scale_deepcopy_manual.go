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

package v1alpha1

// NOTE: ScaleConfig is decoded from annotations rather than served as a CRD, so controller-gen
// does not run on this package and the DeepCopy methods below are maintained by hand.

// DeepCopyInto copies the receiver into out.
func (in *ScaleDirectionBehavior) DeepCopyInto(out *ScaleDirectionBehavior) {
	*out = *in
	if in.Policies != nil {
		in, out := &in.Policies, &out.Policies
		*out = make([]ScalePolicy, len(*in))
		copy(*out, *in)
	}
}

// DeepCopy creates a new ScaleDirectionBehavior.
func (in *ScaleDirectionBehavior) DeepCopy() *ScaleDirectionBehavior {
	if in == nil {
		return nil
	}
	out := new(ScaleDirectionBehavior)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *ScaleBehavior) DeepCopyInto(out *ScaleBehavior) {
	*out = *in
	out.ScaleUp = in.ScaleUp.DeepCopy()
	out.ScaleDown = in.ScaleDown.DeepCopy()
}

// DeepCopy creates a new ScaleBehavior.
func (in *ScaleBehavior) DeepCopy() *ScaleBehavior {
	if in == nil {
		return nil
	}
	out := new(ScaleBehavior)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *ScaleConfig) DeepCopyInto(out *ScaleConfig) {
	*out = *in
	if in.ReplicaMax != nil {
		in, out := &in.ReplicaMax, &out.ReplicaMax
		*out = new(int)
		**out = **in
	}
	if in.Triggers != nil {
		in, out := &in.Triggers, &out.Triggers
		*out = make([]ScaleTrigger, len(*in))
		copy(*out, *in)
	}
	out.Behavior = in.Behavior.DeepCopy()
}

// DeepCopy creates a new ScaleConfig.
func (in *ScaleConfig) DeepCopy() *ScaleConfig {
	if in == nil {
		return nil
	}
	out := new(ScaleConfig)
	in.DeepCopyInto(out)
	return out
}
