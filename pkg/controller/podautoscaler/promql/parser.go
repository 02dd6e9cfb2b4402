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
	"fmt"
	"strconv"
	"strings"
)

// Parse parses a query into an expression tree.
//
//	expr   := term (('+'|'-') term)*
//	term   := factor (('*'|'/') factor)*
//	factor := number | '(' expr ')' | call | selector
func Parse(query string) (Node, error) {
	p := &parser{input: query}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected trailing input %q", p.input[p.pos:])
	}
	return n, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) errorf(format string, args ...interface{}) *ParseError {
	return &ParseError{Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.input[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *parser) expect(tok string) error {
	if p.accept(tok) {
		return nil
	}
	if p.eof() {
		return p.errorf("expected %q, got end of input", tok)
	}
	return p.errorf("expected %q", tok)
}

// acceptKeyword consumes kw only when it is not the prefix of a longer identifier.
func (p *parser) acceptKeyword(kw string) bool {
	p.skipSpace()
	end := p.pos + len(kw)
	if end > len(p.input) || !strings.EqualFold(p.input[p.pos:end], kw) {
		return false
	}
	if end < len(p.input) && isIdentChar(p.input[end]) {
		return false
	}
	p.pos = end
	return true
}

func (p *parser) parseExpr() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch {
		case p.accept("+"):
			op = OpAdd
		case p.accept("-"):
			op = OpSub
		default:
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch {
		case p.accept("*"):
			op = OpMul
		case p.accept("/"):
			op = OpDiv
		default:
			return left, nil
		}
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseFactor() (Node, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("unexpected end of input")
	}

	if p.accept("(") {
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return n, nil
	}

	if c := p.input[p.pos]; isDigit(c) || c == '.' {
		v, err := p.parseNumber(false)
		if err != nil {
			return nil, err
		}
		return &NumberNode{Value: v}, nil
	}

	ident, err := p.parseIdent()
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(ident) {
	case "histogram_quantile":
		return p.parseHistogramQuantile()
	case "max_over_time":
		sel, err := p.parseRangeCall()
		if err != nil {
			return nil, err
		}
		return &MaxOverTimeNode{Selector: sel}, nil
	case "rate":
		sel, err := p.parseRangeCall()
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(sel.Name, "_bucket") {
			return &BucketRateNode{Selector: sel, Label: "le"}, nil
		}
		return &RateNode{Selector: sel}, nil
	case "sum":
		return p.parseAggregation(AggSum)
	case "min":
		return p.parseAggregation(AggMin)
	case "max":
		return p.parseAggregation(AggMax)
	case "avg":
		return p.parseAggregation(AggAvg)
	}

	sel, err := p.parseSelector(ident)
	if err != nil {
		return nil, err
	}
	return &SelectorNode{Selector: sel}, nil
}

func (p *parser) parseHistogramQuantile() (Node, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	phi, err := p.parseNumber(true)
	if err != nil {
		return nil, err
	}
	if err := p.expect(","); err != nil {
		return nil, err
	}
	inner, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return &HistogramQuantileNode{Phi: phi, Inner: inner}, nil
}

// parseRangeCall parses `(selector[range])` following a range function name.
func (p *parser) parseRangeCall() (*Selector, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	sel, err := p.parseSelector(name)
	if err != nil {
		return nil, err
	}
	if err := p.expect("["); err != nil {
		return nil, err
	}
	if sel.Range, err = p.parseDuration(); err != nil {
		return nil, err
	}
	if err := p.expect("]"); err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return sel, nil
}

func (p *parser) parseAggregation(op AggregateOp) (Node, error) {
	var by string
	if p.acceptKeyword("by") {
		if err := p.expect("("); err != nil {
			return nil, err
		}
		label, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if p.accept(",") {
			return nil, p.errorf("grouping by more than one label is not supported")
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		by = label
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}

	var args []Node
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.accept(",") {
			break
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}

	if len(args) > 1 {
		if op != AggMin && op != AggMax {
			return nil, p.errorf("%s accepts a single argument", op)
		}
		if by != "" {
			return nil, p.errorf("%s by (%s) does not accept multiple arguments", op, by)
		}
		return &VariadicNode{Op: op, Args: args}, nil
	}

	inner := args[0]
	sel := rateSelector(inner)
	switch {
	case sel != nil && by != "" && (op == AggSum || op == AggAvg):
		// grouping a rate regroups the per series rates by the requested label
		inner = &BucketRateNode{Selector: sel, Label: by}
	case sel != nil && by == "" && op == AggAvg:
		return &AvgRateNode{Selector: sel}, nil
	}
	return &AggregateNode{Op: op, By: by, Inner: inner}, nil
}

func rateSelector(n Node) *Selector {
	switch n := n.(type) {
	case *RateNode:
		return n.Selector
	case *BucketRateNode:
		return n.Selector
	}
	return nil
}

func (p *parser) parseSelector(name string) (*Selector, error) {
	sel := &Selector{Name: name}
	if !p.accept("{") {
		return sel, nil
	}
	for {
		if p.accept("}") {
			return sel, nil
		}
		label, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		regex := false
		switch {
		case p.accept("=~"):
			regex = true
		case p.accept("="):
		default:
			return nil, p.errorf("expected \"=\" or \"=~\" after label %q", label)
		}
		value, err := p.parseQuoted()
		if err != nil {
			return nil, err
		}
		if regex {
			m, err := newRegexMatcher(label, value)
			if err != nil {
				return nil, p.errorf("invalid regex for label %q: %v", label, err)
			}
			sel.Matchers = append(sel.Matchers, m)
		} else {
			sel.Matchers = append(sel.Matchers, &Matcher{Label: label, Value: value})
		}
		if p.accept(",") {
			continue
		}
		if err := p.expect("}"); err != nil {
			return nil, err
		}
		return sel, nil
	}
}

func (p *parser) parseQuoted() (string, error) {
	if err := p.expect(`"`); err != nil {
		return "", err
	}
	start := p.pos - 1
	var b strings.Builder
	for !p.eof() {
		c := p.input[p.pos]
		p.pos++
		switch {
		case c == '"':
			return b.String(), nil
		case c == '\\' && !p.eof():
			b.WriteByte(p.input[p.pos])
			p.pos++
		default:
			b.WriteByte(c)
		}
	}
	return "", &ParseError{Pos: start, Msg: "unterminated string"}
}

// parseDuration parses `<int>(s|m|h)` and returns seconds.
func (p *parser) parseDuration() (int64, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() && isDigit(p.input[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return 0, p.errorf("expected duration")
	}
	n, err := strconv.ParseInt(p.input[start:p.pos], 10, 64)
	if err != nil {
		return 0, p.errorf("invalid duration %q", p.input[start:p.pos])
	}
	p.skipSpace()
	if p.eof() {
		return 0, p.errorf("expected duration unit, got end of input")
	}
	unit := p.input[p.pos]
	switch unit {
	case 's':
	case 'm':
		n *= 60
	case 'h':
		n *= 3600
	default:
		return 0, p.errorf("unknown duration unit %q, use s, m or h", unit)
	}
	p.pos++
	return n, nil
}

func (p *parser) parseNumber(signed bool) (float64, error) {
	p.skipSpace()
	start := p.pos
	if signed && !p.eof() && (p.input[p.pos] == '+' || p.input[p.pos] == '-') {
		p.pos++
	}
	dot := false
	for !p.eof() {
		c := p.input[p.pos]
		if isDigit(c) {
			p.pos++
			continue
		}
		if c == '.' && !dot {
			dot = true
			p.pos++
			continue
		}
		break
	}
	s := p.input[start:p.pos]
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ParseError{Pos: start, Msg: fmt.Sprintf("invalid number %q", s)}
	}
	return v, nil
}

func (p *parser) parseIdent() (string, error) {
	p.skipSpace()
	start := p.pos
	if p.eof() {
		return "", p.errorf("expected identifier, got end of input")
	}
	if c := p.input[p.pos]; !isIdentStart(c) {
		return "", p.errorf("expected identifier, got %q", c)
	}
	p.pos++
	for !p.eof() && isIdentChar(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos], nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == ':'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
