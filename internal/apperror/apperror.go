// Package apperror defines the typed error kinds the core surfaces, per
// the error-handling design: a source chain, an operation tag, and a
// kind that HTTP adapters translate to wire-level error envelopes. The
// core itself never formats user-facing messages.
package apperror

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure. Implementers may name these
// freely; the set below follows the referential/conflict/admission/
// parsing/execution/merge/catalog grouping.
type Kind int

const (
	KindUnknown Kind = iota

	// Referential
	KindVolumeNotFound
	KindDatabaseNotFound
	KindSchemaNotFound
	KindTableNotFound
	KindMissingVolume

	// Conflict
	KindAlreadyExists
	KindVolumeInUse
	KindRequirementNotMet

	// Admission / lifecycle
	KindConcurrencyLimit
	KindQueryTimeout
	KindQueryCancelled
	KindQueryIsntRunning
	KindMissingSession

	// Parsing / planning
	KindSQLParser
	KindUnimplementedFunction
	KindOnlyXStatements
	KindInvalidTableIdentifier
	KindInvalidSchemaIdentifier
	KindInvalidBucketIdentifier
	KindInvalidFilePath

	// Execution
	KindExecution
	KindArrow
	KindIceberg
	KindObjectStore
	KindS3Tables

	// Merge-specific
	KindMergeTargetMustBeTable
	KindMergeTargetMustBeIcebergTable
	KindMergeSourceNotSupported
	KindNotMatchedBySourceNotSupported
	KindMergeInsertOnlyOneRow
	KindMatchingFilesAlreadyConsumed
	KindMergeFilterStreamNotMatching
	KindMissingFilterPredicates
	KindLogicalExtensionChildCount

	// Catalog list
	KindInvalidCache
	KindCatalogDownCast
	KindNotImplemented

	// Scalar functions
	KindInvalidFunctionArgument

	// HTTP adapters
	KindUnauthenticated
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindVolumeNotFound:
		return "VolumeNotFound"
	case KindDatabaseNotFound:
		return "DatabaseNotFound"
	case KindSchemaNotFound:
		return "SchemaNotFound"
	case KindTableNotFound:
		return "TableNotFound"
	case KindMissingVolume:
		return "MissingVolume"
	case KindAlreadyExists:
		return "ObjectAlreadyExists"
	case KindVolumeInUse:
		return "VolumeInUse"
	case KindRequirementNotMet:
		return "RequirementNotMet"
	case KindConcurrencyLimit:
		return "ConcurrencyLimit"
	case KindQueryTimeout:
		return "QueryTimeout"
	case KindQueryCancelled:
		return "QueryCancelled"
	case KindQueryIsntRunning:
		return "QueryIsntRunning"
	case KindMissingSession:
		return "MissingDataFusionSession"
	case KindSQLParser:
		return "SqlParser"
	case KindUnimplementedFunction:
		return "UnimplementedFunction"
	case KindOnlyXStatements:
		return "OnlyXStatements"
	case KindInvalidTableIdentifier:
		return "InvalidTableIdentifier"
	case KindInvalidSchemaIdentifier:
		return "InvalidSchemaIdentifier"
	case KindInvalidBucketIdentifier:
		return "InvalidBucketIdentifier"
	case KindInvalidFilePath:
		return "InvalidFilePath"
	case KindExecution:
		return "DataFusion"
	case KindArrow:
		return "Arrow"
	case KindIceberg:
		return "Iceberg"
	case KindObjectStore:
		return "ObjectStore"
	case KindS3Tables:
		return "S3Tables"
	case KindMergeTargetMustBeTable:
		return "MergeTargetMustBeTable"
	case KindMergeTargetMustBeIcebergTable:
		return "MergeTargetMustBeIcebergTable"
	case KindMergeSourceNotSupported:
		return "MergeSourceNotSupported"
	case KindNotMatchedBySourceNotSupported:
		return "NotMatchedBySourceNotSupported"
	case KindMergeInsertOnlyOneRow:
		return "MergeInsertOnlyOneRow"
	case KindMatchingFilesAlreadyConsumed:
		return "MatchingFilesAlreadyConsumed"
	case KindMergeFilterStreamNotMatching:
		return "MergeFilterStreamNotMatching"
	case KindMissingFilterPredicates:
		return "MissingFilterPredicates"
	case KindLogicalExtensionChildCount:
		return "LogicalExtensionChildCount"
	case KindInvalidCache:
		return "InvalidCache"
	case KindCatalogDownCast:
		return "CatalogDownCast"
	case KindNotImplemented:
		return "NotImplemented"
	case KindInvalidFunctionArgument:
		return "InvalidFunctionArgument"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with a Kind and the operation that
// produced it, preserving the source chain for errors.Is/As and for
// diagnostics.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error for op/kind wrapping err (which may be nil).
func New(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is like New but builds Err from a format string.
func Newf(op string, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise returns KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
