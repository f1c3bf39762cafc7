package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Open selects a blob backend from the environment. Defaults to the
// filesystem driver when unset.
//
//	VIVARIUM_BLOB_DRIVER: fs|s3|memory (default fs)
//	VIVARIUM_BLOB_FS_ROOT: filesystem root (default ./blobdata)
//	VIVARIUM_BLOB_S3_BUCKET: bucket name (required for s3)
//	VIVARIUM_BLOB_S3_REGION: region (default us-east-1)
//	VIVARIUM_BLOB_S3_ENDPOINT: custom endpoint, for MinIO
//	VIVARIUM_BLOB_S3_PATH_STYLE: true|false (default false)
func Open(ctx context.Context) (Store, error) {
	driver := Driver(os.Getenv("VIVARIUM_BLOB_DRIVER"))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFilesystem:
		return NewFS(os.Getenv("VIVARIUM_BLOB_FS_ROOT"))
	case DriverS3:
		bucket := os.Getenv("VIVARIUM_BLOB_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("VIVARIUM_BLOB_S3_BUCKET required for s3 driver")
		}
		return NewS3(ctx, S3Config{
			Bucket:    bucket,
			Region:    os.Getenv("VIVARIUM_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("VIVARIUM_BLOB_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("VIVARIUM_BLOB_S3_PATH_STYLE"), "true"),
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
