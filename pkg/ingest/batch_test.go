package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTitles(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr error
	}{
		{
			name:  "JSON Array",
			input: `["Anfield", "Wembley Stadium", "Anfield"]`,
			want:  []string{"Anfield", "Wembley Stadium"},
		},
		{
			name:  "Lines",
			input: "Anfield\r\n\n  Camp Nou  \nAnfield\n",
			want:  []string{"Anfield", "Camp Nou"},
		},
		{
			name:    "Empty File",
			input:   "  \n\n",
			wantErr: ErrNoTitles,
		},
		{
			name:    "Empty JSON Array",
			input:   `[]`,
			wantErr: ErrNoTitles,
		},
		{
			name:  "JSON Non-String Items",
			input: `["Anfield", 1884, true, null, {"a": 1}]`,
			want:  []string{"Anfield", "1884", "true", `{"a": 1}`},
		},
		{
			name:  "Bracketed Lines",
			input: "[Anfield\nCamp Nou\n",
			want:  []string{"[Anfield", "Camp Nou"},
		},
		{
			name:  "JSON Object Read As Lines",
			input: `{"title": "Anfield"}`,
			want:  []string{`{"title": "Anfield"}`},
		},
		{
			name:    "Blank JSON Entries",
			input:   `["", "  "]`,
			wantErr: ErrNoTitles,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTitles([]byte(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadTitles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "titles.txt")
	require.NoError(t, os.WriteFile(path, []byte("Anfield\nCamp Nou\n"), 0o644))

	got, err := ReadTitles(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Anfield", "Camp Nou"}, got)

	_, err = ReadTitles(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
