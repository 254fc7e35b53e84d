package blobcodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// Reserved metadata field names, emitted first and in this fixed order —
// spec §4.2 / §6.2's byte-equality contract.
const (
	fieldPK        = "_pk"
	fieldVersion   = "_version"
	fieldCreatedAt = "_created_at"
	fieldUpdatedAt = "_updated_at"
)

type field struct {
	key string
	val any
}

// Serialize renders r as a pretty-printed JSON object: reserved metadata
// keys first in fixed order, then user columns in lexicographic order,
// two-space indent, trailing newline. Two rows with equal (key, version,
// timestamps, columns) always produce byte-identical output.
func Serialize(r Row) ([]byte, error) {
	columnKeys := make([]string, 0, len(r.Columns))
	for k := range r.Columns {
		columnKeys = append(columnKeys, k)
	}
	sort.Strings(columnKeys)

	fields := make([]field, 0, 4+len(columnKeys))
	fields = append(fields,
		field{fieldPK, r.Key},
		field{fieldVersion, r.Version},
		field{fieldCreatedAt, r.CreatedAt.UTC().Format(time.RFC3339Nano)},
		field{fieldUpdatedAt, r.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	)
	for _, k := range columnKeys {
		fields = append(fields, field{k, r.Columns[k]})
	}

	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			compact.WriteByte(',')
		}
		keyBytes, err := json.Marshal(f.key)
		if err != nil {
			return nil, fmt.Errorf("serialize row %q: marshal key %q: %w", r.Key, f.key, err)
		}
		compact.Write(keyBytes)
		compact.WriteByte(':')
		valBytes, err := json.Marshal(f.val)
		if err != nil {
			return nil, fmt.Errorf("serialize row %q: marshal column %q: %w", r.Key, f.key, err)
		}
		compact.Write(valBytes)
	}
	compact.WriteByte('}')

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("serialize row %q: indent: %w", r.Key, err)
	}
	pretty.WriteByte('\n')
	return pretty.Bytes(), nil
}

// Deserialize parses data as a row blob, verifying that its "_pk" field
// equals expectedKey. A mismatch indicates the blob was stored under the
// wrong filename — a corruption invariant violation (spec §3 invariant 1).
func Deserialize(data []byte, expectedKey string) (Row, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Row{}, fmt.Errorf("deserialize row %q: %w", expectedKey, err)
	}

	pk, _ := raw[fieldPK].(string)
	if pk != expectedKey {
		return Row{}, &vcsqlerr.CorruptedError{
			Path:   expectedKey + ".json",
			Reason: fmt.Sprintf("_pk mismatch: blob says %q, expected %q", pk, expectedKey),
		}
	}

	versionFloat, ok := raw[fieldVersion].(float64)
	if !ok {
		return Row{}, &vcsqlerr.CorruptedError{Path: expectedKey + ".json", Reason: "_version missing or not a number"}
	}

	createdAtStr, _ := raw[fieldCreatedAt].(string)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return Row{}, &vcsqlerr.CorruptedError{Path: expectedKey + ".json", Reason: "_created_at not RFC3339: " + err.Error()}
	}
	updatedAtStr, _ := raw[fieldUpdatedAt].(string)
	updatedAt, err := time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return Row{}, &vcsqlerr.CorruptedError{Path: expectedKey + ".json", Reason: "_updated_at not RFC3339: " + err.Error()}
	}

	columns := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == fieldPK || k == fieldVersion || k == fieldCreatedAt || k == fieldUpdatedAt {
			continue
		}
		columns[k] = v
	}

	return Row{
		Key:       pk,
		Version:   uint64(versionFloat),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Columns:   columns,
	}, nil
}
