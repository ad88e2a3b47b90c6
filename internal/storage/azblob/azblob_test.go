package azstore

import (
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/cachesweep/internal/storage/prunable"
)

// Azurite's well-known development account.
const devConnectionString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func TestNew(t *testing.T) {
	s, err := New(devConnectionString, "imagesharp")
	require.NoError(t, err)
	assert.Equal(t, "imagesharp", s.Name())

	_, err = New(devConnectionString, "")
	assert.Error(t, err)

	_, err = New("garbage", "imagesharp")
	assert.Error(t, err)
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "blob not found",
			err:  &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound), StatusCode: http.StatusNotFound},
			want: prunable.ErrNotFound,
		},
		{
			name: "container not found",
			err:  &azcore.ResponseError{ErrorCode: string(bloberror.ContainerNotFound), StatusCode: http.StatusNotFound},
			want: prunable.ErrContainerNotFound,
		},
		{
			name: "auth failure",
			err:  &azcore.ResponseError{ErrorCode: string(bloberror.AuthorizationFailure), StatusCode: http.StatusForbidden},
			want: prunable.ErrAccessDenied,
		},
		{
			name: "plain 403",
			err:  &azcore.ResponseError{StatusCode: http.StatusForbidden},
			want: prunable.ErrAccessDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, wrapError("Delete", "cache/a", tt.err), tt.want)
		})
	}
}

func TestWrapErrorPassesThroughOthers(t *testing.T) {
	src := &azcore.ResponseError{ErrorCode: string(bloberror.ServerBusy), StatusCode: http.StatusServiceUnavailable}
	err := wrapError("List", "cache/", src)
	assert.ErrorIs(t, err, src)
	assert.NotErrorIs(t, err, prunable.ErrNotFound)
}
