package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.input = in
	m.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, m.err
}

func params() UploadParams {
	return UploadParams{
		Name:        "req-1/0.png",
		Data:        []byte("png bytes"),
		ContentType: "image/png",
		Metadata:    map[string]string{"prompt": "a cat", "seed": "7"},
	}
}

func TestS3Uploader(t *testing.T) {
	client := &mockS3{}
	u := &S3Uploader{Client: client, Bucket: "outputs"}

	require.NoError(t, u.Upload(context.Background(), params()))
	assert.Equal(t, "outputs", aws.ToString(client.input.Bucket))
	assert.Equal(t, "req-1/0.png", aws.ToString(client.input.Key))
	assert.Equal(t, "image/png", aws.ToString(client.input.ContentType))
	assert.Equal(t, map[string]string{"prompt": "a cat", "seed": "7"}, client.input.Metadata)
	assert.Equal(t, s3types.StorageClassIntelligentTiering, client.input.StorageClass)
	assert.Equal(t, []byte("png bytes"), client.body)

	client.err = errors.New("throttled")
	assert.ErrorIs(t, u.Upload(context.Background(), params()), client.err)
}

func TestFileUploader(t *testing.T) {
	dir := t.TempDir()
	u := &FileUploader{Dir: dir}

	require.NoError(t, u.Upload(context.Background(), params()))
	data, err := os.ReadFile(filepath.Join(dir, "req-1", "0.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), data)
}
