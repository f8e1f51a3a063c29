/*
Copyright 2023 eatmoreapple

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

package sqlmap

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/gosqlmap/sqlmap/sql"
)

var (
	// ErrEmptyQuery is an error that is returned when the query is empty.
	ErrEmptyQuery = errors.New("empty query")

	// ErrPointerRequired is an error that is returned when the destination is not a pointer.
	ErrPointerRequired = sql.ErrPointerRequired

	// ErrResultMapNotSet is returned by Statement.ResultMap when a statement
	// has no declared or auto-mapping result map configured.
	ErrResultMapNotSet = sql.ErrResultMapNotSet

	// errSliceOrArrayRequired is an error that is returned when the destination is not a slice or array.
	errSliceOrArrayRequired = errors.New("type must be a slice or array")

	// ErrNoStatementFound is an error that is returned when the statement is not found.
	ErrNoStatementFound = errors.New("no statement found")

	// ErrNoManagerFoundInContext is an error that is returned when the manager is not found in context.
	ErrNoManagerFoundInContext = errors.New("no manager found in context")
)

// nodeUnclosedError is an error that is returned when the node is not closed.
type nodeUnclosedError struct {
	nodeName string
	_        struct{}
}

// Error returns the error message.
func (e *nodeUnclosedError) Error() string {
	return fmt.Sprintf("node %s is not closed", e.nodeName)
}

// nodeAttributeRequiredError is an error that is returned when the node requires an attribute.
type nodeAttributeRequiredError struct {
	nodeName string
	attrName string
}

// Error returns the error message.
func (e *nodeAttributeRequiredError) Error() string {
	return fmt.Sprintf("node %s requires attribute %s", e.nodeName, e.attrName)
}

// nodeAttributeConflictError is an error that is returned when the node has conflicting attributes.
type nodeAttributeConflictError struct {
	nodeName string
	attrName string
}

// Error returns the error message.
func (e *nodeAttributeConflictError) Error() string {
	return fmt.Sprintf("node %s has conflicting attribute %s", e.nodeName, e.attrName)
}

// XMLParseError represents an error occurred during XML parsing with detailed context.
type XMLParseError struct {
	// Namespace is the namespace of the mapper being parsed
	Namespace string
	// XMLContent is the XML element content that caused the error
	XMLContent string
	// Err is the underlying error
	Err error
}

// Error returns the error message.
func (e *XMLParseError) Error() string {
	var builder strings.Builder
	builder.WriteString("XML parse error")
	if e.Namespace != "" {
		builder.WriteString(" in namespace '")
		builder.WriteString(e.Namespace)
		builder.WriteString("'")
	}
	if e.XMLContent != "" {
		builder.WriteString(": ")
		builder.WriteString(e.XMLContent)
	}
	if e.Err != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Err.Error())
	}
	return builder.String()
}

// Unwrap returns the underlying error.
func (e *XMLParseError) Unwrap() error {
	return e.Err
}

// unreachable is a function that is used to mark unreachable code.
// nolint:deadcode,unused
func unreachable() error {
	panic("unreachable")
}

// Kind classifies an *Error by the stage of the mapping/execution pipeline
// that raised it, so callers can branch on failure category without string
// matching, e.g. `errors.As(err, &kindErr); kindErr.Kind == sqlmap.POOL_EXHAUSTED`.
type Kind string

const (
	// CONFIG_MALFORMED reports unparsable mapping or configuration XML.
	CONFIG_MALFORMED Kind = "CONFIG_MALFORMED"
	// CONFIG_INCOMPLETE reports unresolved forward references at end of build.
	CONFIG_INCOMPLETE Kind = "CONFIG_INCOMPLETE"
	// CONFIG_UNKNOWN_SETTING reports a configuration setting that is not recognized.
	CONFIG_UNKNOWN_SETTING Kind = "CONFIG_UNKNOWN_SETTING"
	// REFLECTION_AMBIGUOUS reports an ambiguous field/tag collision for a property.
	REFLECTION_AMBIGUOUS Kind = "REFLECTION_AMBIGUOUS"
	// REFLECTION_MISSING reports an access to a property the target type does not expose.
	REFLECTION_MISSING Kind = "REFLECTION_MISSING"
	// CONVERSION_FAILED reports a type converter that failed to bind or decode a value.
	CONVERSION_FAILED Kind = "CONVERSION_FAILED"
	// STATEMENT_NOT_FOUND reports a referenced statement id that does not resolve.
	STATEMENT_NOT_FOUND Kind = "STATEMENT_NOT_FOUND"
	// TRANSACTION_CONFIG reports a driver rejecting autocommit/isolation configuration.
	TRANSACTION_CONFIG Kind = "TRANSACTION_CONFIG"
	// POOL_EXHAUSTED reports acquisition exceeding bad-connection tolerance with no usable connection.
	POOL_EXHAUSTED Kind = "POOL_EXHAUSTED"
	// CACHE_LOCK_TIMEOUT reports a blocking cache lock not obtained before timeout.
	CACHE_LOCK_TIMEOUT Kind = "CACHE_LOCK_TIMEOUT"
	// EXECUTION_FAILED reports a driver error during prepare/execute.
	EXECUTION_FAILED Kind = "EXECUTION_FAILED"
	// RESULT_MATERIALIZATION reports a failure while decoding a result row.
	RESULT_MATERIALIZATION Kind = "RESULT_MATERIALIZATION"
)

// Error is the single exported error type every Kind above is carried by.
// Cause is attached with github.com/pkg/errors.Wrap so %+v on the returned
// error (or pkgerrors.Cause/StackTracer on it) still surfaces where the
// failure actually originated, not just where it was reclassified.
type Error struct {
	Kind      Kind
	Statement string
	SQL       string
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Statement != "" {
		b.WriteString(": statement ")
		b.WriteString(e.Statement)
	}
	if e.SQL != "" {
		b.WriteString(": sql ")
		b.WriteString(e.SQL)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// newError wraps cause (if non-nil) with pkg/errors.Wrap to capture a stack
// trace at the point of reclassification, and reports it as kind.
func newError(kind Kind, statement, sqlText string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = pkgerrors.Wrap(cause, string(kind))
	}
	return &Error{Kind: kind, Statement: statement, SQL: sqlText, Cause: wrapped}
}

// AsKind reports whether err (or something it wraps) is an *Error of the given Kind.
func AsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
