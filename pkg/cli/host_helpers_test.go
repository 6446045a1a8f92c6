package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		host    string
		want    string
		wantErr string
	}{
		{name: "http with port", host: "http://127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "https", host: "https://explore.example.com", want: "https://explore.example.com"},
		{name: "trailing slash and spaces", host: "  http://localhost:8080/  ", want: "http://localhost:8080"},
		{name: "empty", host: " ", wantErr: "cannot be empty"},
		{name: "missing scheme", host: "localhost:8080", wantErr: "scheme"},
		{name: "ftp scheme", host: "ftp://files.example.com", wantErr: "scheme"},
		{name: "api prefix", host: "http://localhost:8080/v1", wantErr: "drop the path"},
		{name: "query", host: "http://localhost:8080?x=1", wantErr: "not allowed"},
		{name: "credentials", host: "http://user:pw@localhost:8080", wantErr: "not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := normalizeHost(tt.host)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
