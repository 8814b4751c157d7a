// Package s3 provides an Amazon S3 implementation of modelstore.Store,
// plus a Publisher that pairs S3 snapshot uploads with a DynamoDB
// conditional write to track the current model of a family atomically.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(s3sdk.NewFromConfig(cfg), "my-bucket", "models/")
//
//	err = store.Put(ctx, "apogee-2026-08.cannon", snapshotReader)
//
// # Features
//
//   - Multipart uploads for large snapshots (feature/s3/manager)
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//   - Optional IO rate limiting via resource.Controller
package s3
