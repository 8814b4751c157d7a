// Package minio provides a modelstore.Store implementation using the MinIO
// client, for MinIO and other S3-compatible storage (Ceph, Garage,
// SeaweedFS) without any AWS dependency.
//
// # Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := miniostore.NewStore(client, "models", "cannon/")
//	err = store.Put(ctx, "apogee-2026-08.cannon", snapshotReader)
package minio
