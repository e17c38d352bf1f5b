package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/facevault/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockS3Client struct {
	mock.Mock
}

func result[T any](args mock.Arguments) (*T, error) {
	out, _ := args.Get(0).(*T)
	return out, args.Error(1)
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return result[s3.PutObjectOutput](m.Called(ctx, params))
}

func (m *MockS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return result[s3.UploadPartOutput](m.Called(ctx, params))
}

func (m *MockS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return result[s3.CreateMultipartUploadOutput](m.Called(ctx, params))
}

func (m *MockS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return result[s3.CompleteMultipartUploadOutput](m.Called(ctx, params))
}

func (m *MockS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return result[s3.AbortMultipartUploadOutput](m.Called(ctx, params))
}

func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return result[s3.ListObjectsV2Output](m.Called(ctx, params))
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return result[s3.HeadObjectOutput](m.Called(ctx, params))
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return result[s3.GetObjectOutput](m.Called(ctx, params))
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return result[s3.DeleteObjectOutput](m.Called(ctx, params))
}

const testBucket = "faces"

func newMocked(prefix string) (*MockS3Client, *Store) {
	c := new(MockS3Client)
	return c, NewStore(c, testBucket, prefix)
}

func TestStore_Open(t *testing.T) {
	c, store := newMocked("facevault")
	ctx := context.Background()

	c.On("HeadObject", ctx, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Key) == "facevault/missing"
	})).Return(nil, &types.NotFound{}).Once()
	c.On("HeadObject", ctx, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Bucket) == testBucket && aws.ToString(in.Key) == "facevault/LATEST"
	})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(22)}, nil).Once()

	_, err := store.Open(ctx, "missing")
	assert.True(t, blobstore.IsNotFound(err))

	blob, err := store.Open(ctx, "LATEST")
	require.NoError(t, err)
	assert.Equal(t, int64(22), blob.Size())
	c.AssertExpectations(t)
}

func TestStore_PutDelete(t *testing.T) {
	c, store := newMocked("facevault")
	ctx := context.Background()

	var uploaded []byte
	c.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Key) == "facevault/backup_1/index.bin" &&
			in.ChecksumAlgorithm == types.ChecksumAlgorithmCrc32c
	})).Run(func(args mock.Arguments) {
		uploaded, _ = io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	c.On("DeleteObject", ctx, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "facevault/backup_1/index.bin"
	})).Return(nil, &types.NoSuchKey{}).Once()

	require.NoError(t, store.Put(ctx, "backup_1/index.bin", []byte("snapshot")))
	assert.Equal(t, "snapshot", string(uploaded))

	// Deleting a missing object succeeds.
	require.NoError(t, store.Delete(ctx, "backup_1/index.bin"))
	c.AssertExpectations(t)
}

func TestStore_List(t *testing.T) {
	c, store := newMocked("facevault/")

	c.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Prefix) == "facevault/backup_" && in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("page-2"),
		Contents: []types.Object{
			{Key: aws.String("facevault/backup_2/index.bin")},
			{Key: aws.String("facevault/backup_2/metadata.bin")},
		},
	}, nil).Once()
	c.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.ContinuationToken) == "page-2"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("facevault/backup_1/index.bin")}},
	}, nil).Once()

	names, err := store.List(context.Background(), "backup_")
	require.NoError(t, err)
	assert.Equal(t, []string{"backup_1/index.bin", "backup_2/index.bin", "backup_2/metadata.bin"}, names)
	c.AssertExpectations(t)
}

func TestBlob_Ranges(t *testing.T) {
	c := new(MockS3Client)
	blob := &s3Blob{client: c, bucket: testBucket, key: "facevault/LATEST", size: 10}
	ctx := context.Background()

	ranged := func(r string) any {
		return mock.MatchedBy(func(in *s3.GetObjectInput) bool { return aws.ToString(in.Range) == r })
	}
	c.On("GetObject", ctx, ranged("bytes=0-4")).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("backu"))}, nil).Once()
	c.On("GetObject", ctx, ranged("bytes=8-9")).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("_1"))}, nil).Once()

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "backu", string(buf[:n]))

	r, err := blob.ReadRange(ctx, 8, 100)
	require.NoError(t, err)
	tail, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "_1", string(tail))

	n, err = blob.ReadAt(ctx, buf, 10)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
	c.AssertExpectations(t)
}
