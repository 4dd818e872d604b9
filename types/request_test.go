package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindValid(t *testing.T) {
	assert.True(t, KindRemoteID.Valid())
	assert.True(t, KindNotation.Valid())
	assert.False(t, Kind("").Valid())
	assert.False(t, Kind("inline").Valid())
}

func TestIdentityKey(t *testing.T) {
	req := VisualizationRequest{Kind: KindRemoteID, Identifier: "2244"}
	assert.Equal(t, "remote-id:2244", req.IdentityKey())

	// Style variants of the same identifier share one identity key.
	styled := req
	styled.Style.Representation = "sphere"
	assert.Equal(t, req.IdentityKey(), styled.IdentityKey())
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     VisualizationRequest
		wantErr bool
	}{
		{"valid remote-id", VisualizationRequest{Kind: KindRemoteID, Identifier: "2244"}, false},
		{"valid notation", VisualizationRequest{Kind: KindNotation, Identifier: "CC(=O)O"}, false},
		{"unknown kind", VisualizationRequest{Kind: "mystery", Identifier: "x"}, true},
		{"blank identifier", VisualizationRequest{Kind: KindRemoteID, Identifier: "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
