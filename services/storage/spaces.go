// Package storage archives intake attachments in an S3-compatible bucket (DigitalOcean Spaces).
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

// SpacesConfig holds configuration for the archive bucket
type SpacesConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
}

// SpacesArchiver stores a private copy of every intake attachment
type SpacesArchiver struct {
	s3Client s3iface.S3API
	bucket   string
	prefix   string
	newID    func() string
}

// NewSpacesArchiver creates an archiver backed by Spaces
func NewSpacesArchiver(config SpacesConfig) (*SpacesArchiver, error) {
	endpoint := config.Endpoint
	if !strings.HasPrefix(endpoint, "http") {
		endpoint = "https://" + endpoint
	}

	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		),
		Endpoint:         aws.String(endpoint),
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spaces session: %w", err)
	}

	return newSpacesArchiver(s3.New(sess), config.Bucket, config.Prefix), nil
}

func newSpacesArchiver(client s3iface.S3API, bucket, prefix string) *SpacesArchiver {
	if prefix == "" {
		prefix = "intake"
	}
	return &SpacesArchiver{
		s3Client: client,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		newID:    uuid.NewString,
	}
}

// Archive uploads the attachment and returns its object key
func (a *SpacesArchiver) Archive(ctx context.Context, sessionID, fileName, mimeType string, data []byte) (string, error) {
	if mimeType == "" {
		mimeType = ContentType(fileName)
	}
	key := a.objectKey(sessionID, fileName)

	_, err := a.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ACL:         aws.String("private"),
		ContentType: aws.String(mimeType),
		Metadata: map[string]*string{
			"session-id": aws.String(sessionID),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", fileName, err)
	}
	return key, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (a *SpacesArchiver) objectKey(sessionID, fileName string) string {
	ext := filepath.Ext(fileName)
	base := unsafeKeyChars.ReplaceAllString(strings.TrimSuffix(filepath.Base(fileName), ext), "_")
	if base == "" {
		base = "attachment"
	}
	dir := unsafeKeyChars.ReplaceAllString(sessionID, "_")
	return fmt.Sprintf("%s/%s/%s-%s%s", a.prefix, dir, a.newID(), base, strings.ToLower(ext))
}

// ContentType returns the content type for an accepted attachment name
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
