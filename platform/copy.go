// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

package platform

import (
	"bufio"
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pipeforge/pipeforge/runlog"
)

// streamLines copies r into out one line at a time, the same shape as
// backend/runner.go's stdcopy.StdCopy(os.Stdout, os.Stderr, out) call,
// generalized from stdout/stderr to the run's Logger Sink.
func streamLines(r io.Reader, out *runlog.Sink) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if out != nil {
			out.Line("%s", scanner.Text())
		}
	}
	return scanner.Err()
}

// copyPath performs a push/get file copy between two host-visible
// paths, or to/from an S3-compatible bucket when either side is an
// s3://bucket/key URI.
func copyPath(ctx context.Context, from, to string) error {
	if strings.HasPrefix(to, "s3://") {
		return uploadToS3(ctx, from, to)
	}
	if strings.HasPrefix(from, "s3://") {
		return downloadFromS3(ctx, from, to)
	}
	return copyLocal(from, to)
}

func copyLocal(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return filepath.Walk(from, func(path string, fi os.FileInfo, err error) error {
			if err != nil || fi.IsDir() {
				return err
			}
			rel, err := filepath.Rel(from, path)
			if err != nil {
				return err
			}
			return copyFile(path, filepath.Join(to, rel))
		})
	}
	return copyFile(from, to)
}

func copyFile(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	data, err := ioutil.ReadFile(from)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(to, data, 0o644)
}

// s3URI splits an s3://bucket/key URI into its parts.
func s3URI(uri string) (bucket, key string) {
	trimmed := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

func s3Client() (*minio.Client, error) {
	endpoint := os.Getenv("PIPEFORGE_S3_ENDPOINT")
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewEnvAWS(),
		Secure: os.Getenv("PIPEFORGE_S3_INSECURE") == "",
	})
}

func uploadToS3(ctx context.Context, from, to string) error {
	cli, err := s3Client()
	if err != nil {
		return err
	}
	bucket, key := s3URI(to)
	_, err = cli.FPutObject(ctx, bucket, key, from, minio.PutObjectOptions{})
	return err
}

func downloadFromS3(ctx context.Context, from, to string) error {
	cli, err := s3Client()
	if err != nil {
		return err
	}
	bucket, key := s3URI(from)
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	return cli.FGetObject(ctx, bucket, key, to, minio.GetObjectOptions{})
}
