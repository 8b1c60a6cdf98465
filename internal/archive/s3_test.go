package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestStore_UploadsUnderCompanyPrefix(t *testing.T) {
	putter := &fakePutter{}
	a := New(putter, "reports", "ioms/outages", nil)
	company := uuid.New()

	key, err := a.Store(t.Context(), company, "ioms-outages-20260101-20260201.csv", []byte("outage_id\n"))
	require.NoError(t, err)

	assert.Equal(t, "ioms/outages/"+company.String()+"/ioms-outages-20260101-20260201.csv", key)
	assert.Equal(t, "reports", aws.ToString(putter.input.Bucket))
	assert.Equal(t, key, aws.ToString(putter.input.Key))
	assert.Equal(t, "text/csv", aws.ToString(putter.input.ContentType))
	assert.Equal(t, int64(10), aws.ToInt64(putter.input.ContentLength))
	assert.Equal(t, "outage_id\n", string(putter.body))
}

func TestStore_EmptyPrefix(t *testing.T) {
	a := New(&fakePutter{}, "reports", "", nil)
	company := uuid.New()
	assert.Equal(t, company.String()+"/x.csv", a.Key(company, "x.csv"))
}

func TestStore_WrapsClientError(t *testing.T) {
	boom := errors.New("access denied")
	a := New(&fakePutter{err: boom}, "reports", "", nil)

	_, err := a.Store(t.Context(), uuid.New(), "x.csv", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "s3://reports/")
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(t.Context(), Config{Region: "eu-west-1"}, nil)
	require.Error(t, err)
}
