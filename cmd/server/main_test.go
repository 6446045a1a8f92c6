package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExploreURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		listenAddr string
		want       string
	}{
		{listenAddr: ":8080", want: "http://localhost:8080/ui/explore"},
		{listenAddr: "", want: "http://localhost:8080/ui/explore"},
		{listenAddr: "0.0.0.0:9000", want: "http://localhost:9000/ui/explore"},
		{listenAddr: "[::]:9000", want: "http://localhost:9000/ui/explore"},
		{listenAddr: "127.0.0.1:8081", want: "http://127.0.0.1:8081/ui/explore"},
		{listenAddr: "[::1]:8081", want: "http://[::1]:8081/ui/explore"},
		{listenAddr: " explore.internal:80 ", want: "http://explore.internal:80/ui/explore"},
		{listenAddr: "explore.internal", want: "http://explore.internal/ui/explore"},
	}

	for _, tt := range tests {
		t.Run(tt.listenAddr, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, exploreURL(tt.listenAddr))
		})
	}
}
