package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

func TestNewTableName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr vcsqlerr.InvalidNameKind
		ok      bool
	}{
		{"users", 0, true},
		{"_custom", 0, true},
		{"order-items", 0, true},
		{"", vcsqlerr.KindEmpty, false},
		{"1users", vcsqlerr.KindInvalidStart, false},
		{"users!", vcsqlerr.KindInvalidChar, false},
		{"_schemas", vcsqlerr.KindReserved, false},
		{"_SCHEMAS", vcsqlerr.KindReserved, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := NewTableName(c.name)
			if c.ok {
				require.NoError(t, err)
				assert.Equal(t, TableName(c.name), got)
				return
			}
			require.Error(t, err)
			var nameErr *vcsqlerr.InvalidNameError
			require.ErrorAs(t, err, &nameErr)
			assert.Equal(t, c.wantErr, nameErr.Kind)
		})
	}
}

func TestNewTableNameTooLong(t *testing.T) {
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	_, err := NewTableName(string(long))
	var nameErr *vcsqlerr.InvalidNameError
	require.ErrorAs(t, err, &nameErr)
	assert.Equal(t, vcsqlerr.KindTooLong, nameErr.Kind)
}

func TestNewRowKey(t *testing.T) {
	_, err := NewRowKey("")
	require.Error(t, err)

	k, err := NewRowKey("row_1-2")
	require.NoError(t, err)
	assert.Equal(t, RowKey("row_1-2"), k)

	_, err = NewRowKey("row/1")
	require.Error(t, err)
}

func TestNewBranchName(t *testing.T) {
	_, err := NewBranchName("")
	require.Error(t, err)

	_, err = NewBranchName("/main")
	require.Error(t, err)

	_, err = NewBranchName("tx/../main")
	require.Error(t, err)

	b, err := NewBranchName("tx/01haj")
	require.NoError(t, err)
	assert.Equal(t, BranchName("tx/01haj"), b)
}
