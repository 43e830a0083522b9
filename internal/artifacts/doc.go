// Package artifacts publishes finished videos. The local backend copies into
// paths.artifacts_dir; the MinIO backend uploads to an S3-compatible bucket.
package artifacts
