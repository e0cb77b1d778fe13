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
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyLocalSingleFile(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "src.txt")
	to := filepath.Join(dir, "out", "dst.txt")
	if err := os.WriteFile(from, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := copyPath(context.Background(), from, to); err != nil {
		t.Fatalf("copyPath: %v", err)
	}
	got, err := os.ReadFile(to)
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q, want %q", got, "payload")
	}
}

func TestCopyLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "src")
	if err := os.MkdirAll(filepath.Join(from, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(from, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(from, "nested", "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	to := filepath.Join(dir, "dst")
	if err := copyPath(context.Background(), from, to); err != nil {
		t.Fatalf("copyPath: %v", err)
	}
	if got, err := os.ReadFile(filepath.Join(to, "nested", "b.txt")); err != nil || string(got) != "b" {
		t.Fatalf("nested file not copied correctly: %v %q", err, got)
	}
}

func TestS3URISplitsBucketAndKey(t *testing.T) {
	bucket, key := s3URI("s3://my-bucket/path/to/object.tar")
	if bucket != "my-bucket" || key != "path/to/object.tar" {
		t.Fatalf("got bucket=%q key=%q", bucket, key)
	}
}
