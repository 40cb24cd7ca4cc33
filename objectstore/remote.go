// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package objectstore implements the optional remote blob backend
// (C2: S3/MinIO-compatible), adapted from storj.io/storj's
// mirroring/pkg/object_layer/s3compat client construction. Init/uninit is
// process-global, singleton semantics enforced by the caller checking
// IsInit before Init.
package objectstore

import (
	"bytes"
	"io"
	"sync"

	miniogo "github.com/minio/minio-go"
	"github.com/zeebo/errs"
)

var (
	mu     sync.Mutex
	client *miniogo.Client
	bucket string
)

// IsInit reports whether a remote store client is currently installed.
func IsInit() bool {
	mu.Lock()
	defer mu.Unlock()
	return client != nil
}

// InitRemoteStore constructs and installs the process-global remote store
// client. It is a programmer error to call this while a client is already
// installed; callers must check IsInit first.
func InitRemoteStore(url string, https bool, accessKey, secretKey, bkt string) error {
	mu.Lock()
	defer mu.Unlock()

	if client != nil {
		return errs.New("remote store was initialized before")
	}

	c, err := miniogo.New(url, accessKey, secretKey, https)
	if err != nil {
		return errs.Wrap(err)
	}

	exists, err := c.BucketExists(bkt)
	if err != nil {
		return errs.Wrap(err)
	}
	if !exists {
		if err := c.MakeBucket(bkt, ""); err != nil {
			return errs.Wrap(err)
		}
	}

	client = c
	bucket = bkt
	return nil
}

// UnInitRemoteStore tears down the process-global remote store client. It
// is idempotent: calling it when no client is installed is a no-op.
func UnInitRemoteStore() {
	mu.Lock()
	defer mu.Unlock()
	client = nil
	bucket = ""
}

// PutObject uploads data under key to the configured bucket.
func PutObject(key string, data []byte, contentType string) error {
	mu.Lock()
	c, bkt := client, bucket
	mu.Unlock()

	if c == nil {
		return errs.New("remote store is not initialized")
	}

	_, err := c.PutObject(bkt, key, bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{ContentType: contentType})
	return errs.Wrap(err)
}

// GetObject downloads the object stored under key.
func GetObject(key string) ([]byte, error) {
	mu.Lock()
	c, bkt := client, bucket
	mu.Unlock()

	if c == nil {
		return nil, errs.New("remote store is not initialized")
	}

	obj, err := c.GetObject(bkt, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer func() { _ = obj.Close() }()

	return io.ReadAll(obj)
}
