package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
	getErr  error
	delErr  error
	lastPut *s3.PutObjectInput
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.lastPut = in
	f.objects[*in.Bucket+"/"+*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.delErr != nil {
		return nil, f.delErr
	}
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := &S3Store{client: fake, bucket: "sync"}

	require.NoError(t, s.Put(ctx, "cabinets/c/packages/p.json", []byte("blob")))
	assert.Equal(t, "application/json", aws.ToString(fake.lastPut.ContentType))
	assert.Equal(t, int64(4), aws.ToInt64(fake.lastPut.ContentLength))

	got, err := s.Get(ctx, "cabinets/c/packages/p.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)

	require.NoError(t, s.Delete(ctx, "cabinets/c/packages/p.json"))
	_, err = s.Get(ctx, "cabinets/c/packages/p.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Store_Errors(t *testing.T) {
	ctx := context.Background()

	fake := newFakeS3()
	fake.putErr = errors.New("put boom")
	fake.getErr = errors.New("get boom")
	fake.delErr = errors.New("del boom")
	s := &S3Store{client: fake, bucket: "sync"}

	assert.ErrorContains(t, s.Put(ctx, "k", nil), "put boom")
	_, err := s.Get(ctx, "k")
	assert.ErrorContains(t, err, "get boom")
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorContains(t, s.Delete(ctx, "k"), "del boom")
}

func TestS3Store_GenericNotFoundCodes(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = &smithy.GenericAPIError{Code: "NotFound"}
	fake.delErr = &smithy.GenericAPIError{Code: "NoSuchKey"}
	s := &S3Store{client: fake, bucket: "sync"}

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(context.Background(), "k"))
}

func TestNewS3Store_WiresConfig(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	defer func() { loadDefaultAWSConfig, newS3ClientFromConfig = origLoad, origNew }()

	var lo awsconfig.LoadOptions
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		return aws.Config{}, nil
	}
	var opts s3.Options
	fake := newFakeS3()
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		for _, fn := range optFns {
			fn(&opts)
		}
		return fake
	}

	s, err := NewS3Store(context.Background(), S3Config{
		Region:       "eu-central-1",
		Endpoint:     "http://minio:9000",
		AccessKey:    "ak",
		SecretKey:    "sk",
		Bucket:       "sync",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "sync", s.bucket)
	assert.Equal(t, "eu-central-1", lo.Region)
	assert.NotNil(t, lo.Credentials)
	assert.Equal(t, "http://minio:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Store_Errors(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	assert.Error(t, err)

	orig := loadDefaultAWSConfig
	defer func() { loadDefaultAWSConfig = orig }()
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	_, err = NewS3Store(context.Background(), S3Config{Bucket: "sync"})
	assert.ErrorContains(t, err, "load-fail")
}
