package content

import (
	"bytes"
	"context"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rgeddes/contentd/internal/xerrors"
)

// mirrorPutTimeout bounds each upload so a slow or unreachable endpoint can
// never stall an update past its snapshot step.
const mirrorPutTimeout = 10 * time.Second

// S3PutAPI is the slice of the S3 client the mirror needs. Extracted so tests
// can substitute a recording double.
type S3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads each snapshot to an S3 bucket as an offsite copy. The
// BackupManager calls it best-effort: a failed upload is logged there and the
// local snapshot stands on its own.
type S3Mirror struct {
	client S3PutAPI
	bucket string
	prefix string
}

// NewS3Mirror builds a mirror writing to s3://bucket/prefix/<backup id>.
func NewS3Mirror(client S3PutAPI, bucket, prefix string) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket, prefix: prefix}
}

// Put implements Mirror.
func (m *S3Mirror) Put(ctx context.Context, id string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, mirrorPutTimeout)
	defer cancel()

	key := path.Join(m.prefix, id)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put s3://%s/%s", m.bucket, key)
	}
	return nil
}
