package catalog

import (
	"fmt"
	"time"

	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// AddColumn appends col to schema, rejecting a duplicate name, and
// returns the new schema with its version bumped and UpdatedAt refreshed.
// The caller persists the result via UpdateTable.
func AddColumn(schema Schema, col Column) (Schema, error) {
	if _, ok := schema.Column(col.Name); ok {
		return Schema{}, fmt.Errorf("schema %q: column %q: %w", schema.Name, col.Name, vcsqlerr.ErrDuplicateColumn)
	}
	out := schema
	out.Columns = append(append([]Column{}, schema.Columns...), col)
	out.Version = schema.Version + 1
	out.UpdatedAt = time.Now().UTC()
	return out, nil
}

// RemoveColumn drops the named column, refusing to remove the primary
// key.
func RemoveColumn(schema Schema, name string) (Schema, error) {
	if schema.PrimaryKey == name {
		return Schema{}, fmt.Errorf("schema %q: column %q: %w", schema.Name, name, vcsqlerr.ErrPrimaryKeyRemoval)
	}
	if _, ok := schema.Column(name); !ok {
		return Schema{}, fmt.Errorf("schema %q: column %q: %w", schema.Name, name, vcsqlerr.ErrUnknownColumn)
	}
	cols := make([]Column, 0, len(schema.Columns)-1)
	for _, c := range schema.Columns {
		if c.Name != name {
			cols = append(cols, c)
		}
	}
	out := schema
	out.Columns = cols
	out.Version = schema.Version + 1
	out.UpdatedAt = time.Now().UTC()
	return out, nil
}

// RenameColumn renames oldName to newName in place, preserving column
// order, and bumps the schema version. Present in the original gitdb
// implementation but silent in the distilled spec; not excluded by any
// Non-goal.
func RenameColumn(schema Schema, oldName, newName string) (Schema, error) {
	if _, ok := schema.Column(oldName); !ok {
		return Schema{}, fmt.Errorf("schema %q: column %q: %w", schema.Name, oldName, vcsqlerr.ErrUnknownColumn)
	}
	if oldName != newName {
		if _, ok := schema.Column(newName); ok {
			return Schema{}, fmt.Errorf("schema %q: column %q: %w", schema.Name, newName, vcsqlerr.ErrDuplicateColumn)
		}
	}
	cols := make([]Column, len(schema.Columns))
	copy(cols, schema.Columns)
	for i, c := range cols {
		if c.Name == oldName {
			cols[i].Name = newName
		}
	}
	out := schema
	out.Columns = cols
	if out.PrimaryKey == oldName {
		out.PrimaryKey = newName
	}
	out.Version = schema.Version + 1
	out.UpdatedAt = time.Now().UTC()
	return out, nil
}
