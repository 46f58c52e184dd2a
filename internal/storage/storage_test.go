package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Mirror_Put(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "orders_2026-10-16_08-30-00.csv")
	if err := os.WriteFile(local, []byte("id\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fake := &fakeS3{}
	m := newS3Mirror(fake, "bucket", "/stageload/archive/")
	m.now = func() time.Time { return time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC) }

	key, err := m.Put(context.Background(), local)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	want := "stageload/archive/2026/10/16/orders_2026-10-16_08-30-00.csv"
	if key != want {
		t.Errorf("key = %q, want %q", key, want)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("PutObject calls = %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if *in.Bucket != "bucket" || *in.ContentType != "text/csv" || *in.ContentLength != 5 {
		t.Errorf("input = bucket %q type %q len %d", *in.Bucket, *in.ContentType, *in.ContentLength)
	}
	if fake.bodies[0] != "id\n1\n" {
		t.Errorf("body = %q", fake.bodies[0])
	}
}

func TestS3Mirror_PutErrors(t *testing.T) {
	m := newS3Mirror(&fakeS3{}, "bucket", "p")
	if _, err := m.Put(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("Put(missing file) should fail")
	}

	local := filepath.Join(t.TempDir(), "a.csv")
	os.WriteFile(local, []byte("x"), 0o644)
	boom := errors.New("access denied")
	m = newS3Mirror(&fakeS3{err: boom}, "bucket", "p")
	if _, err := m.Put(context.Background(), local); !errors.Is(err, boom) {
		t.Errorf("Put() error = %v, want wrapped %v", err, boom)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.csv":  "text/csv",
		"a.TSV":  "text/tab-separated-values",
		"a.txt":  "text/tab-separated-values",
		"a.zip":  "application/zip",
		"a.none": "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestNop(t *testing.T) {
	key, err := Nop{}.Put(context.Background(), "/nowhere")
	if key != "" || err != nil {
		t.Errorf("Nop.Put() = %q, %v", key, err)
	}
}
