package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vcsql/vcsql/internal/blobcodec"
	"github.com/vcsql/vcsql/internal/names"
	"github.com/vcsql/vcsql/internal/objstore"
	"github.com/vcsql/vcsql/internal/repo"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// schemasTable is the reserved table schemas are persisted into. It is
// constructed directly rather than through names.NewTableName since
// reserved names are rejected by that validator by design.
const schemasTable names.TableName = "_schemas"

const schemaField = "schema"

// Catalog is the schema catalog, a thin layer over a repo.Engine.
type Catalog struct {
	engine *repo.Engine
}

// New wraps engine in a Catalog.
func New(engine *repo.Engine) *Catalog { return &Catalog{engine: engine} }

func validateSchemaShape(s Schema) error {
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if seen[c.Name] {
			return fmt.Errorf("schema %q: column %q: %w", s.Name, c.Name, vcsqlerr.ErrDuplicateColumn)
		}
		seen[c.Name] = true
	}
	if s.PrimaryKey != "" && !seen[s.PrimaryKey] {
		return fmt.Errorf("schema %q: primary key %q: %w", s.Name, s.PrimaryKey, vcsqlerr.ErrUnknownColumn)
	}
	return nil
}

func encodeSchema(s Schema) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode schema %q: %w", s.Name, err)
	}
	return string(data), nil
}

func decodeSchema(row blobcodec.Row) (Schema, error) {
	raw, ok := row.Columns[schemaField]
	if !ok {
		return Schema{}, fmt.Errorf("schema row %q: %w", row.Key, vcsqlerr.ErrMissingColumn)
	}
	str, ok := raw.(string)
	if !ok {
		return Schema{}, &vcsqlerr.CorruptedError{Path: schemaField, Reason: "schema field is not a string"}
	}
	var s Schema
	if err := json.Unmarshal([]byte(str), &s); err != nil {
		return Schema{}, fmt.Errorf("decode schema row %q: %w", row.Key, err)
	}
	return s, nil
}

func (c *Catalog) ensureSchemasTable(at objstore.CommitID, txID string) (objstore.CommitID, error) {
	exists, err := c.engine.TableExists(schemasTable, at)
	if err != nil {
		return objstore.CommitID{}, err
	}
	if exists {
		return at, nil
	}
	return c.engine.CreateTable(schemasTable, at, txID)
}

// CreateTable validates schema, lazily creates `_schemas`, rejects a
// duplicate name, and persists the schema as a new row.
func (c *Catalog) CreateTable(schema Schema, at objstore.CommitID, txID string) (objstore.CommitID, error) {
	if err := validateSchemaShape(schema); err != nil {
		return objstore.CommitID{}, err
	}
	at, err := c.ensureSchemasTable(at, txID)
	if err != nil {
		return objstore.CommitID{}, err
	}

	if _, err := c.engine.ReadRow(schemasTable, names.RowKey(schema.Name), at); err == nil {
		return objstore.CommitID{}, fmt.Errorf("schema %q: %w", schema.Name, vcsqlerr.ErrTableAlreadyExists)
	} else if !vcsqlerr.IsNotFound(err) {
		return objstore.CommitID{}, err
	}

	now := time.Now().UTC()
	if schema.Version == 0 {
		schema.Version = 1
	}
	schema.CreatedAt = now
	schema.UpdatedAt = now

	encoded, err := encodeSchema(schema)
	if err != nil {
		return objstore.CommitID{}, err
	}
	row := blobcodec.Row{
		Key:       schema.Name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Columns:   map[string]any{schemaField: encoded},
	}
	return c.engine.InsertRow(schemasTable, row, at, txID)
}

// GetTable returns the stored schema for name.
func (c *Catalog) GetTable(name string, at objstore.CommitID) (Schema, error) {
	exists, err := c.engine.TableExists(schemasTable, at)
	if err != nil {
		return Schema{}, err
	}
	if !exists {
		return Schema{}, fmt.Errorf("table %q: %w", name, vcsqlerr.ErrTableNotFound)
	}
	row, err := c.engine.ReadRow(schemasTable, names.RowKey(name), at)
	if err != nil {
		if vcsqlerr.IsNotFound(err) {
			return Schema{}, fmt.Errorf("table %q: %w", name, vcsqlerr.ErrTableNotFound)
		}
		return Schema{}, err
	}
	return decodeSchema(row)
}

// TableExists reports whether name has a stored schema. An absent
// `_schemas` table is treated as an empty catalog, not an error — spec §7
// propagation policy.
func (c *Catalog) TableExists(name string, at objstore.CommitID) (bool, error) {
	exists, err := c.engine.TableExists(schemasTable, at)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	_, err = c.engine.ReadRow(schemasTable, names.RowKey(name), at)
	if err != nil {
		if vcsqlerr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListTables returns every stored schema name. An absent `_schemas` table
// yields an empty list.
func (c *Catalog) ListTables(at objstore.CommitID) ([]string, error) {
	exists, err := c.engine.TableExists(schemasTable, at)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	keys, err := c.engine.ListRows(schemasTable, at)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, string(k))
	}
	return out, nil
}

// UpdateTable persists schema over the stored version, requiring a
// strictly greater version number.
func (c *Catalog) UpdateTable(schema Schema, at objstore.CommitID, txID string) (objstore.CommitID, error) {
	if err := validateSchemaShape(schema); err != nil {
		return objstore.CommitID{}, err
	}
	stored, err := c.GetTable(schema.Name, at)
	if err != nil {
		return objstore.CommitID{}, err
	}
	if schema.Version <= stored.Version {
		return objstore.CommitID{}, fmt.Errorf("schema %q: version %d <= stored %d: %w",
			schema.Name, schema.Version, stored.Version, vcsqlerr.ErrSchemaNotNewer)
	}
	schema.CreatedAt = stored.CreatedAt
	schema.UpdatedAt = time.Now().UTC()

	encoded, err := encodeSchema(schema)
	if err != nil {
		return objstore.CommitID{}, err
	}
	row := blobcodec.Row{
		Key:       schema.Name,
		Version:   stored.Version + 1,
		CreatedAt: schema.CreatedAt,
		UpdatedAt: schema.UpdatedAt,
		Columns:   map[string]any{schemaField: encoded},
	}
	return c.engine.UpdateRow(schemasTable, row, at, txID)
}

// DropTable removes name's schema row. The underlying data table itself
// is dropped by the executor, per spec §4.7.
func (c *Catalog) DropTable(name string, at objstore.CommitID, txID string) (objstore.CommitID, error) {
	if _, err := c.GetTable(name, at); err != nil {
		return objstore.CommitID{}, err
	}
	return c.engine.DeleteRow(schemasTable, names.RowKey(name), at, txID)
}
