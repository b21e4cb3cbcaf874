package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{name: "empty", doc: `{}`},
		{name: "full", doc: `{"version":"1.0","server":{"addr":":5001"},"sync":{"transport":"ws"},
			"bins":[{"id":"BIN-001","longitude":-74.006,"latitude":40.7128,"capacity":100,"counts":{"plastic":10}}]}`},
		{name: "unknown top-level key", doc: `{"colour":"green"}`, wantErr: "additional"},
		{name: "bad transport", doc: `{"sync":{"transport":"carrier-pigeon"}}`, wantErr: "/sync/transport"},
		{name: "bin without id", doc: `{"bins":[{"capacity":5}]}`, wantErr: "/bins/0"},
		{name: "latitude out of range", doc: `{"bins":[{"id":"X","latitude":91}]}`, wantErr: "/bins/0/latitude"},
		{name: "zero capacity", doc: `{"bins":[{"id":"X","capacity":0}]}`, wantErr: "/bins/0/capacity"},
		{name: "threshold above one", doc: `{"classifier":{"threshold":1.5}}`, wantErr: "/classifier/threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(tt.doc), &doc))

			err := v.Validate(doc)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRawIsCopy(t *testing.T) {
	a := Raw()
	a[0] = 'x'
	assert.NotEqual(t, a[0], Raw()[0])
}

func TestValidationErrorListsEveryViolation(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"bins":[{"id":"X","latitude":91,"capacity":0}]}`), &doc))

	err = v.Validate(doc)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	paths := make([]string, 0, len(verr.Violations))
	for _, viol := range verr.Violations {
		paths = append(paths, viol.Path)
	}
	assert.Equal(t, []string{"/bins/0/capacity", "/bins/0/latitude"}, paths)
}
