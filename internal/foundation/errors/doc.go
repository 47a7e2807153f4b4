// Package errors provides the classified error type used across pmeyes.
//
// A ClassifiedError carries a category (what part of the pipeline failed), a
// severity, a message, an optional cause and free-form context. Errors are
// built with the fluent ErrorBuilder:
//
//	err := errors.ContentError("duplicate slug").
//		WithContext("slug", slug).
//		WithContext("files", []string{a, b}).
//		Build()
//
// The CLI and HTTP adapters turn errors into exit codes and JSON responses.
package errors
