package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/imabhichow/duvet/pkg/logging"
)

type fakeObject struct {
	bucket      string
	contentType string
	body        string
}

type fakeS3 struct {
	objects map[string]fakeObject
	fail    error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string]fakeObject)
	}
	f.objects[*params.Key] = fakeObject{
		bucket:      *params.Bucket,
		contentType: *params.ContentType,
		body:        string(body),
	}
	return &s3.PutObjectOutput{}, nil
}

func newTestUploader(client s3API) *Uploader {
	return NewWithClient(client, Config{
		Bucket: "reports",
		Prefix: "/ci/duvet/",
		Logger: logging.NopLogger{},
	})
}

func TestPutPrefixesKeys(t *testing.T) {
	fake := &fakeS3{}
	up := newTestUploader(fake)

	err := up.Put(context.Background(), "report.json", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}

	obj, ok := fake.objects["ci/duvet/report.json"]
	if !ok {
		t.Fatalf("object missing, have %v", fake.objects)
	}
	if obj.bucket != "reports" || obj.body != "{}" || obj.contentType != "application/json" {
		t.Errorf("object = %+v", obj)
	}
}

func TestPutWrapsClientError(t *testing.T) {
	sentinel := errors.New("denied")
	up := newTestUploader(&fakeS3{fail: sentinel})

	err := up.Put(context.Background(), "x", "text/plain", strings.NewReader("y"))
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
}

func TestPutDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"index.html":      "<html></html>",
		"report.json":     "{}",
		"docs/a.txt.html": "<html>a</html>",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fake := &fakeS3{}
	up := newTestUploader(fake)

	n, err := up.PutDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("put dir failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("uploaded = %d, want 3", n)
	}

	obj, ok := fake.objects["ci/duvet/docs/a.txt.html"]
	if !ok {
		t.Fatalf("nested object missing, have %v", fake.objects)
	}
	if obj.contentType != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", obj.contentType)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}
