// Package names implements the validated identifier types of spec §4.1:
// table names, row keys, and branch names. None of these types carry
// behavior beyond validation — they exist so the compiler rejects, say, a
// raw string being passed where a branch name was expected.
package names

import (
	"strings"

	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// TableName is a validated table identifier (spec §3 invariant 7).
type TableName string

// reservedTables names the reserved-prefix tables the root tree may
// otherwise contain (spec §3 invariant 2) but that user DDL must not
// collide with.
var reservedTables = map[string]bool{
	"_schema":  true,
	"_schemas": true,
	"_meta":    true,
	"_system":  true,
	"_git":     true,
}

// NewTableName validates s as a table name: 1-64 chars, first char
// alphabetic or underscore, remainder alphanumeric/underscore/hyphen, and
// not a member of the reserved set.
func NewTableName(s string) (TableName, error) {
	if len(s) == 0 {
		return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindEmpty, Value: s}
	}
	if len(s) > 64 {
		return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindTooLong, Value: s}
	}
	first := rune(s[0])
	if !isAlpha(first) && first != '_' {
		return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindInvalidStart, Value: s}
	}
	for _, r := range s[1:] {
		if !isAlphaNum(r) && r != '_' && r != '-' {
			return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindInvalidChar, Value: s}
		}
	}
	if reservedTables[strings.ToLower(s)] {
		return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindReserved, Value: s}
	}
	return TableName(s), nil
}

// RowKey is a validated row-key identifier (spec §3 invariant 7).
type RowKey string

// NewRowKey validates s as a row key: 1-128 chars,
// alphanumeric/underscore/hyphen only.
func NewRowKey(s string) (RowKey, error) {
	if len(s) == 0 {
		return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindEmpty, Value: s}
	}
	if len(s) > 128 {
		return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindTooLong, Value: s}
	}
	for _, r := range s {
		if !isAlphaNum(r) && r != '_' && r != '-' {
			return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindInvalidChar, Value: s}
		}
	}
	return RowKey(s), nil
}

// BranchName is a validated branch identifier (spec §3 invariant 7):
// non-empty, no "..", no leading/trailing "/".
type BranchName string

// NewBranchName validates s as a branch name.
func NewBranchName(s string) (BranchName, error) {
	if len(s) == 0 {
		return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindEmpty, Value: s}
	}
	if strings.Contains(s, "..") {
		return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindInvalidPath, Value: s}
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return "", &vcsqlerr.InvalidNameError{Kind: vcsqlerr.KindInvalidPath, Value: s}
	}
	return BranchName(s), nil
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isAlphaNum(r rune) bool {
	return isAlpha(r) || (r >= '0' && r <= '9')
}
