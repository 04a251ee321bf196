package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateContainer_RoundTrip(t *testing.T) {
	original := NewUpdateContainer(17, &ShareCreatedBody{
		ShareID:   "sh-1",
		SessionID: "sess-1",
		OwnerID:   "acct-1",
	})

	data, err := json.Marshal(original)
	require.NoError(t, err)

	// The envelope carries the discriminant.
	var envelope struct {
		Body struct {
			T string `json:"t"`
		} `json:"body"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, UpdateShareCreated, envelope.Body.T)

	var decoded UpdateContainer
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, int64(17), decoded.Seq)

	body, ok := decoded.Body.(*ShareCreatedBody)
	require.True(t, ok)
	assert.Equal(t, "sh-1", body.ShareID)
	assert.Equal(t, "sess-1", body.SessionID)
}

func TestUpdateContainer_UnknownTypeRejected(t *testing.T) {
	raw := []byte(`{"id":"x","seq":1,"created_at":0,"body":{"t":"mystery","data":{}}}`)
	var decoded UpdateContainer
	err := json.Unmarshal(raw, &decoded)
	assert.Error(t, err)
}

func TestUpdateContainer_AllVariants(t *testing.T) {
	bodies := []UpdateBody{
		&SessionUpdatedBody{SessionID: "s"},
		&MachineUpdatedBody{MachineID: "m"},
		&ArtifactUpdatedBody{ArtifactID: "a"},
		&AccountUpdatedBody{AccountID: "acct"},
		&ShareCreatedBody{ShareID: "sh"},
		&ShareRevokedBody{ShareID: "sh"},
	}
	for _, body := range bodies {
		data, err := json.Marshal(NewUpdateContainer(1, body))
		require.NoError(t, err)
		var decoded UpdateContainer
		require.NoError(t, json.Unmarshal(data, &decoded), "variant %s", body.UpdateType())
		assert.Equal(t, body.UpdateType(), decoded.Body.UpdateType())
	}
}
