// Package staging manages per-job scratch directories under paths.staging_dir.
package staging
