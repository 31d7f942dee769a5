package avrogen

import "github.com/reoring/avrogen/avroerr"

// Error kinds, matched with errors.Is.
var (
	ErrSchema         = avroerr.ErrSchema
	ErrSerialization  = avroerr.ErrSerialization
	ErrMalformedInput = avroerr.ErrMalformedInput
	ErrTruncatedInput = avroerr.ErrTruncatedInput
	ErrOverflow       = avroerr.ErrOverflow
	ErrUnknownSchema  = avroerr.ErrUnknownSchema
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	CodeInvalidType     = avroerr.CodeInvalidType
	CodeUnknownType     = avroerr.CodeUnknownType
	CodeMissingKey      = avroerr.CodeMissingKey
	CodeInvalidName     = avroerr.CodeInvalidName
	CodeDuplicateName   = avroerr.CodeDuplicateName
	CodeUnresolvedName  = avroerr.CodeUnresolvedName
	CodeInvalidUnion    = avroerr.CodeInvalidUnion
	CodeInvalidLogical  = avroerr.CodeInvalidLogical
	CodeInvalidDefault  = avroerr.CodeInvalidDefault
	CodeDuplicateSymbol = avroerr.CodeDuplicateSymbol
	CodeDuplicateField  = avroerr.CodeDuplicateField
	CodeCycle           = avroerr.CodeCycle
	CodeIncompatible    = avroerr.CodeIncompatible
	CodeDuplicateKey    = avroerr.CodeDuplicateKey
	// Serialization
	CodeUnionAmbiguous = avroerr.CodeUnionAmbiguous
	CodeNoUnionBranch  = avroerr.CodeNoUnionBranch
	CodeMissingField   = avroerr.CodeMissingField
	CodeUnknownField   = avroerr.CodeUnknownField
	CodeOutOfRange     = avroerr.CodeOutOfRange
	CodeInvalidUTF8    = avroerr.CodeInvalidUTF8
	CodeInvalidSize    = avroerr.CodeInvalidSize
	CodeInvalidSymbol  = avroerr.CodeInvalidSymbol
	CodePrecisionLoss  = avroerr.CodePrecisionLoss
	// Decoding
	CodeTruncated        = avroerr.CodeTruncated
	CodeOverflow         = avroerr.CodeOverflow
	CodeInvalidBool      = avroerr.CodeInvalidBool
	CodeNegativeLength   = avroerr.CodeNegativeLength
	CodeLengthLimit      = avroerr.CodeLengthLimit
	CodeItemLimit        = avroerr.CodeItemLimit
	CodeDepthLimit       = avroerr.CodeDepthLimit
	CodeIndexOutOfRange  = avroerr.CodeIndexOutOfRange
	CodeInvalidFormat    = avroerr.CodeInvalidFormat
	CodeTrailingBytes    = avroerr.CodeTrailingBytes
	CodeUnknownEnumValue = avroerr.CodeUnknownEnumValue
)

// Issue is a single diagnosable failure.
type Issue = avroerr.Issue

// Issues is a collection of failures that implements error.
type Issues = avroerr.Issues

// AsIssues extracts Issues from an error.
func AsIssues(err error) (Issues, bool) { return avroerr.AsIssues(err) }
