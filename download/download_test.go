package download

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/a-h/provision/mirror"
)

// insecureTestClient trusts any server certificate; these tests spin up
// multiple httptest.NewTLSServer instances, each with its own self-signed
// cert, and need one client able to reach all of them.
func insecureTestClient() *http.Client {
	return &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// TestVerifiedDownloadHappyPath implements scenario S4.
func TestVerifiedDownloadHappyPath(t *testing.T) {
	content := []byte("Test file content")
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "file.zip")

	e := New(discardLogger(), WithHTTPClient(insecureTestClient()))
	result := e.Download(context.Background(), Request{
		URL:            srv.URL + "/file.zip",
		Destination:    dest,
		ExpectedSHA256: sha256Hex(content),
	})

	if result.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed (err=%v)", result.Status, result.Error)
	}
	if result.FileSize != 17 {
		t.Errorf("fileSize = %d, want 17", result.FileSize)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading destination: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("destination contents = %q, want %q", got, content)
	}
}

// TestHashMismatch implements scenario S5.
func TestHashMismatch(t *testing.T) {
	content := []byte("Test file content")
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "file.zip")

	e := New(discardLogger(), WithHTTPClient(insecureTestClient()))
	result := e.Download(context.Background(), Request{
		URL:            srv.URL + "/file.zip",
		Destination:    dest,
		ExpectedSHA256: "0000000000000000000000000000000000000000000000000000000000000",
	})

	if result.Status != StatusHashFailed {
		t.Fatalf("status = %q, want hashFailed", result.Status)
	}
	if !errors.Is(result.Error, ErrHashVerification) {
		t.Errorf("error = %v, want wrapping ErrHashVerification", result.Error)
	}
	if _, err := os.Stat(dest); !errors.Is(err, fs.ErrNotExist) {
		t.Error("destination should not exist after a hash mismatch")
	}
	if _, err := os.Stat(dest + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Error("temporary file should be unlinked after a hash mismatch")
	}
}

// TestBadSchemeRejectedImmediately checks the HTTPS-only security contract.
func TestBadSchemeRejectedImmediately(t *testing.T) {
	e := New(discardLogger())
	result := e.Download(context.Background(), Request{URL: "http://example.com/file.zip", Destination: t.TempDir() + "/f"})
	if result.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	if !errors.Is(result.Error, ErrBadScheme) {
		t.Errorf("error = %v, want ErrBadScheme", result.Error)
	}
}

// TestMirrorFallbackWithRetry implements scenario S6: primary fails twice
// (initial attempt plus one retry) then succeeds on the third mirror.
func TestMirrorFallbackWithRetry(t *testing.T) {
	content := []byte("mirror payload")
	goodSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer goodSrv.Close()

	badSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	dir := t.TempDir()
	registry := mirror.New()

	e := New(discardLogger(), WithHTTPClient(insecureTestClient()), WithMaxRetries(1))
	e.sleep = func(context.Context, time.Duration) error { return nil }

	result := e.DownloadWithMirrorFallback(context.Background(), Request{
		URL:            badSrv.URL + "/file",
		Mirrors:        []string{badSrv.URL + "/file2", goodSrv.URL + "/file"},
		Destination:    filepath.Join(dir, "out"),
		ExpectedSHA256: sha256Hex(content),
	}, registry)

	if result.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed (err=%v)", result.Status, result.Error)
	}

	primaryInfo, ok := registry.Get(badSrv.URL + "/file")
	if !ok || primaryInfo.FailureCount < 2 {
		t.Errorf("primary mirror should have recorded 2 failures (initial attempt + 1 retry), got %+v", primaryInfo)
	}
}

// TestParallelDownloads implements scenario S7: 3 requests, 2 succeed, 1
// fails.
func TestParallelDownloads(t *testing.T) {
	content := []byte("ok")
	goodSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer goodSrv.Close()

	badSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer badSrv.Close()

	dir := t.TempDir()
	e := New(discardLogger(), WithHTTPClient(insecureTestClient()), WithMaxRetries(0))

	requests := []Request{
		{URL: goodSrv.URL + "/file1", Destination: filepath.Join(dir, "file1"), ExpectedSHA256: sha256Hex(content)},
		{URL: badSrv.URL + "/file2", Destination: filepath.Join(dir, "file2"), ExpectedSHA256: sha256Hex(content)},
		{URL: goodSrv.URL + "/file3", Destination: filepath.Join(dir, "file3"), ExpectedSHA256: sha256Hex(content)},
	}

	result := e.EnableParallelDownloads(context.Background(), requests, 2, nil)

	if result.TotalDownloads != 3 || result.Successful != 2 || result.Failed != 1 {
		t.Fatalf("got totals=%d successful=%d failed=%d, want 3/2/1", result.TotalDownloads, result.Successful, result.Failed)
	}
	if result.IntegritySummary.SuccessRate < 66.0 || result.IntegritySummary.SuccessRate > 67.0 {
		t.Errorf("success rate = %.2f, want ~66.67", result.IntegritySummary.SuccessRate)
	}
	foundFailure := false
	for _, r := range result.IntegritySummary.FailedResults {
		if r.URL == badSrv.URL+"/file2" {
			foundFailure = true
		}
	}
	if !foundFailure {
		t.Error("failed item's URL should contain file2")
	}
}

func TestBackoffDelay(t *testing.T) {
	d1 := backoffDelay(1, 0)
	if d1 < 1*time.Second+90*time.Millisecond || d1 > 1*time.Second+510*time.Millisecond {
		t.Errorf("attempt 1 delay = %v, want in [1.09s, 1.51s]", d1)
	}
	d2 := backoffDelay(2, 1)
	if d2 < 2*time.Second+490*time.Millisecond || d2 > 2*time.Second+510*time.Millisecond {
		t.Errorf("attempt 2 delay with max jitter = %v, want ~2.5s", d2)
	}
}
