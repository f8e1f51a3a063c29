/*
Copyright 2025 eatmoreapple

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

// Package ctxreducer folds a chain of context-mutating steps (attach a
// session, attach a parameter, ...) into a single context.Context before a
// StatementHandler hands it to the driver.
package ctxreducer

import (
	"context"

	"github.com/gosqlmap/sqlmap/eval"
	"github.com/gosqlmap/sqlmap/session"
)

// ContextReducer mutates a context, returning the new one.
type ContextReducer interface {
	Reduce(ctx context.Context) context.Context
}

// ContextReducerFunc adapts a plain function to ContextReducer.
type ContextReducerFunc func(ctx context.Context) context.Context

// Reduce implements ContextReducer.
func (f ContextReducerFunc) Reduce(ctx context.Context) context.Context { return f(ctx) }

// ContextReducerGroup applies its reducers in order.
type ContextReducerGroup []ContextReducer

// Reduce implements ContextReducer.
func (g ContextReducerGroup) Reduce(ctx context.Context) context.Context {
	for _, r := range g {
		ctx = r.Reduce(ctx)
	}
	return ctx
}

// G is a terse alias for ContextReducerGroup, used where a reducer chain is
// built inline at the call site.
type G = ContextReducerGroup

// NewSessionContextReducer attaches sess to the context via session.WithContext.
func NewSessionContextReducer(sess session.Session) ContextReducer {
	return ContextReducerFunc(func(ctx context.Context) context.Context {
		return session.WithContext(ctx, sess)
	})
}

// NewParamContextReducer attaches param to the context via eval.CtxWithParam.
func NewParamContextReducer(param eval.Param) ContextReducer {
	return ContextReducerFunc(func(ctx context.Context) context.Context {
		return eval.CtxWithParam(ctx, param)
	})
}
