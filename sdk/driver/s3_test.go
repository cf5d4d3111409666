// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/config"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
)

func setupFakeS3(t *testing.T, bucket string) *config.S3Client {
	t.Helper()
	backend := s3mem.New()
	fs := gofakes3.New(backend)
	server := httptest.NewServer(fs.Server())
	t.Cleanup(server.Close)
	if err := backend.CreateBucket(bucket); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	client, err := config.NewS3Client(context.Background(), config.S3Config{
		AccessKey:   "test",
		SecretKey:   "test",
		Region:      "us-east-1",
		EndpointURL: server.URL,
	})
	if err != nil {
		t.Fatalf("s3 client: %v", err)
	}
	return client
}

func TestS3RoundTrip(t *testing.T) {
	client := setupFakeS3(t, "transfers")
	s := NewS3(client).NewSession()
	defer s.Close()

	payload := bytes.Repeat([]byte("s3-data "), 512)
	res := open(t, s, &Request{
		URL:        mustURL(t, "s3://transfers/dir/object.txt"),
		Upload:     bytes.NewReader(payload),
		UploadSize: int64(len(payload)),
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
	})
	if res.err != nil || res.resp.StatusCode != http.StatusOK {
		t.Fatalf("upload failed: %+v %v", res.resp, res.err)
	}

	res = open(t, s, &Request{URL: mustURL(t, "s3://transfers/dir/object.txt")})
	if res.err != nil {
		t.Fatalf("get failed: %v", res.err)
	}
	if !bytes.Equal(res.body, payload) {
		t.Fatalf("downloaded %d bytes, want %d", len(res.body), len(payload))
	}

	res = open(t, s, &Request{URL: mustURL(t, "s3://transfers/dir/object.txt"), NoBody: true})
	if res.err != nil || len(res.body) != 0 {
		t.Fatalf("head failed: %v (%d body bytes)", res.err, len(res.body))
	}
	if res.resp.ContentLength != int64(len(payload)) {
		t.Fatalf("head size = %d", res.resp.ContentLength)
	}
}

func TestS3MissingObjectIsResponseStatus(t *testing.T) {
	client := setupFakeS3(t, "transfers")
	s := NewS3(client).NewSession()
	defer s.Close()

	res := open(t, s, &Request{URL: mustURL(t, "s3://transfers/missing")})
	if res.err != nil {
		t.Fatalf("unexpected transport error: %v", res.err)
	}
	if res.resp == nil || res.resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 response, got %+v", res.resp)
	}
}

func TestS3OpenRejectsBadURL(t *testing.T) {
	client := setupFakeS3(t, "transfers")
	s := NewS3(client).NewSession()
	defer s.Close()

	_, err := s.Open(context.Background(), &Request{URL: mustURL(t, "s3://transfers/")}, nil)
	if errs.CodeOf(err) != errs.CodeURLMalformed {
		t.Fatalf("expected URL_MALFORMAT, got %v", err)
	}
}
