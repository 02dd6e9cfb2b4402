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

// Package promql implements the subset of PromQL used by scale triggers.
// Queries are parsed into an immutable expression tree and evaluated against a
// metrics snapshot at a given instant.
package promql

// Node is an expression tree node. The set of node types is closed.
type Node interface {
	node()
}

// BinaryOp is an arithmetic operator.
type BinaryOp byte

const (
	OpAdd BinaryOp = '+'
	OpSub BinaryOp = '-'
	OpMul BinaryOp = '*'
	OpDiv BinaryOp = '/'
)

// AggregateOp is an aggregation function.
type AggregateOp string

const (
	AggSum AggregateOp = "sum"
	AggMin AggregateOp = "min"
	AggMax AggregateOp = "max"
	AggAvg AggregateOp = "avg"
)

// NumberNode is a numeric literal.
type NumberNode struct {
	Value float64
}

// BinaryNode applies an arithmetic operator to the scalar values of both operands.
type BinaryNode struct {
	Op          BinaryOp
	Left, Right Node
}

// SelectorNode is a bare instant selector. It evaluates to the sum of the latest
// value of every matching series.
type SelectorNode struct {
	Selector *Selector
}

// RateNode is rate(selector[range]) summed over all matching series.
type RateNode struct {
	Selector *Selector
}

// BucketRateNode computes per series rates grouped by the value of Label.
type BucketRateNode struct {
	Selector *Selector
	Label    string
}

// AvgRateNode is avg(rate(selector[range])): the mean of the per series rates.
type AvgRateNode struct {
	Selector *Selector
}

// MaxOverTimeNode is the largest raw sample of all matching series within the range.
type MaxOverTimeNode struct {
	Selector *Selector
}

// AggregateNode is sum/min/max/avg over a single argument, optionally grouped by one label.
type AggregateNode struct {
	Op    AggregateOp
	By    string
	Inner Node
}

// VariadicNode is min or max over two or more scalar arguments.
type VariadicNode struct {
	Op   AggregateOp
	Args []Node
}

// HistogramQuantileNode estimates the Phi quantile from bucketed counts keyed by le.
type HistogramQuantileNode struct {
	Phi   float64
	Inner Node
}

func (*NumberNode) node()            {}
func (*BinaryNode) node()            {}
func (*SelectorNode) node()          {}
func (*RateNode) node()              {}
func (*BucketRateNode) node()        {}
func (*AvgRateNode) node()           {}
func (*MaxOverTimeNode) node()       {}
func (*AggregateNode) node()         {}
func (*VariadicNode) node()          {}
func (*HistogramQuantileNode) node() {}

// Inspect traverses the tree in depth-first order, calling fn for each node.
// Children are skipped when fn returns false.
func Inspect(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *BinaryNode:
		Inspect(n.Left, fn)
		Inspect(n.Right, fn)
	case *AggregateNode:
		Inspect(n.Inner, fn)
	case *VariadicNode:
		for _, arg := range n.Args {
			Inspect(arg, fn)
		}
	case *HistogramQuantileNode:
		Inspect(n.Inner, fn)
	}
}

// Selectors returns every selector referenced by the tree.
func Selectors(n Node) []*Selector {
	var out []*Selector
	Inspect(n, func(n Node) bool {
		switch n := n.(type) {
		case *SelectorNode:
			out = append(out, n.Selector)
		case *RateNode:
			out = append(out, n.Selector)
		case *BucketRateNode:
			out = append(out, n.Selector)
		case *AvgRateNode:
			out = append(out, n.Selector)
		case *MaxOverTimeNode:
			out = append(out, n.Selector)
		}
		return true
	})
	return out
}
