package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Open selects a Store from environment variables.
//
//	FIELDLOG_BLOB_DRIVER: fs|s3|memory (default fs)
//	FIELDLOG_BLOB_FS_ROOT: directory when driver=fs
//	FIELDLOG_BLOB_S3_BUCKET: bucket when driver=s3 (required)
//	FIELDLOG_BLOB_S3_REGION, FIELDLOG_BLOB_S3_ENDPOINT,
//	FIELDLOG_BLOB_S3_PATH_STYLE: optional S3 tuning
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY: optional static credentials
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("FIELDLOG_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("FIELDLOG_BLOB_FS_ROOT"))
	case DriverS3:
		bucket := os.Getenv("FIELDLOG_BLOB_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("FIELDLOG_BLOB_S3_BUCKET required for s3 driver")
		}
		return NewS3(ctx, S3Config{
			Bucket:          bucket,
			Region:          os.Getenv("FIELDLOG_BLOB_S3_REGION"),
			Endpoint:        os.Getenv("FIELDLOG_BLOB_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			PathStyle:       strings.EqualFold(os.Getenv("FIELDLOG_BLOB_S3_PATH_STYLE"), "true"),
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
