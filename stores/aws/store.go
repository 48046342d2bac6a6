package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"collabroom/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based snapshot store. One object per room id;
// S3 puts are atomic, so a failed write leaves the previous object intact.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	s3Client := s3.NewFromConfig(cfg)

	return &s3Store{
		s3Client: s3Client,
		bucket:   bucketName,
	}
}

// Read retrieves the latest snapshot for a room. Part of the SnapshotStore interface.
func (s *s3Store) Read(ctx context.Context, roomID string) (*core.Snapshot, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(roomID),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("room %s: %w", roomID, core.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot for room %s: %v", roomID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot data: %v", err)
	}

	return &core.Snapshot{Data: data}, nil
}

// Write replaces the stored snapshot for a room. Part of the SnapshotStore interface.
func (s *s3Store) Write(ctx context.Context, roomID string, snapshot *core.Snapshot) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(roomID),
		Body:   bytes.NewReader(snapshot.Data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot for room %s: %v", roomID, err)
	}
	return nil
}
