// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package llm

import "context"

// Fake is a deterministic Client for tests: it never calls out, and returns
// caller-configured canned values.
type Fake struct {
	CompleteFn func(prompt string) string
	ScoreFn    func(prompt string) float64
}

func NewFake() *Fake {
	return &Fake{
		CompleteFn: func(prompt string) string { return "answer: " + prompt },
		ScoreFn:    func(prompt string) float64 { return 0.9 },
	}
}

func (f *Fake) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteFn(prompt), nil
}

func (f *Fake) Score(ctx context.Context, prompt string) (float64, error) {
	return f.ScoreFn(prompt), nil
}
