package upload

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		BucketName:      "panoramas-test",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		Endpoint:        "https://account-id.r2.cloudflarestorage.com",
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestNewServiceRequiredFields(t *testing.T) {
	base := ServiceConfig{
		BucketName:      "b",
		AccessKeyID:     "k",
		SecretAccessKey: "s",
		Endpoint:        "https://r2.example.com",
	}

	tests := []struct {
		name   string
		mutate func(*ServiceConfig)
	}{
		{"missing bucket", func(c *ServiceConfig) { c.BucketName = "" }},
		{"missing access key", func(c *ServiceConfig) { c.AccessKeyID = "" }},
		{"missing secret", func(c *ServiceConfig) { c.SecretAccessKey = "" }},
		{"missing endpoint", func(c *ServiceConfig) { c.Endpoint = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := NewService(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewServiceDefaults(t *testing.T) {
	svc := newTestService(t)

	if svc.MaxSizeBytes() != 50*1024*1024 {
		t.Errorf("max size = %d, want 50 MB default", svc.MaxSizeBytes())
	}
	if svc.urlExpiry != 5*time.Minute {
		t.Errorf("expiry = %v, want 5m default", svc.urlExpiry)
	}
}

func TestValidateContentType(t *testing.T) {
	for _, mime := range []string{MIMEImageJPEG, MIMEImagePNG, MIMEImageWebP} {
		if err := ValidateContentType(mime); err != nil {
			t.Errorf("ValidateContentType(%s) = %v", mime, err)
		}
	}

	for _, mime := range []string{"image/gif", "application/pdf", "video/mp4", ""} {
		if err := ValidateContentType(mime); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("ValidateContentType(%s) = %v, want ErrUnsupportedType", mime, err)
		}
	}
}

func TestValidateFileSize(t *testing.T) {
	svc := newTestService(t)

	if err := svc.ValidateFileSize(10 * 1024 * 1024); err != nil {
		t.Errorf("10 MB rejected: %v", err)
	}
	if err := svc.ValidateFileSize(svc.MaxSizeBytes()); err != nil {
		t.Errorf("exact limit rejected: %v", err)
	}
	if err := svc.ValidateFileSize(svc.MaxSizeBytes() + 1); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("over limit: %v, want ErrFileTooLarge", err)
	}
	if err := svc.ValidateFileSize(0); err == nil {
		t.Error("zero size accepted")
	}
	if err := svc.ValidateFileSize(-1); err == nil {
		t.Error("negative size accepted")
	}
}

func TestGenerateObjectKey(t *testing.T) {
	key, err := GenerateObjectKey(MIMEImageJPEG, "museum.example.com")
	if err != nil {
		t.Fatalf("GenerateObjectKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "panoramas/museum.example.com/") {
		t.Errorf("key = %q, want domain prefix", key)
	}
	if !strings.HasSuffix(key, ".jpg") {
		t.Errorf("key = %q, want .jpg suffix", key)
	}

	key, err = GenerateObjectKey(MIMEImageWebP, "")
	if err != nil {
		t.Fatalf("GenerateObjectKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "panoramas/temp/") {
		t.Errorf("key = %q, want temp prefix for empty domain", key)
	}
	if !strings.HasSuffix(key, ".webp") {
		t.Errorf("key = %q, want .webp suffix", key)
	}

	if _, err := GenerateObjectKey("image/gif", "x"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("unexpected error: %v", err)
	}

	// A domain that sanitizes to nothing cannot become a prefix.
	if _, err := GenerateObjectKey(MIMEImageJPEG, "///"); !errors.Is(err, ErrInvalidDomain) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGenerateObjectKeyUnique(t *testing.T) {
	a, err := GenerateObjectKey(MIMEImageJPEG, "museum.example.com")
	if err != nil {
		t.Fatalf("GenerateObjectKey failed: %v", err)
	}
	b, err := GenerateObjectKey(MIMEImageJPEG, "museum.example.com")
	if err != nil {
		t.Fatalf("GenerateObjectKey failed: %v", err)
	}
	if a == b {
		t.Error("expected unique keys")
	}
}

func TestSanitizePathComponent(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"museum.example.com", "museum.example.com"},
		{"sub-domain_x.example.com", "sub-domain_x.example.com"},
		{"../../../etc", "etc"},
		{"a/b\\c", "abc"},
		{"...", ""},
		{"UPPER.Case", "UPPER.Case"},
	}
	for _, tt := range tests {
		if got := sanitizePathComponent(tt.input); got != tt.want {
			t.Errorf("sanitizePathComponent(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGenerateSignedURL(t *testing.T) {
	svc := newTestService(t)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.timeNow = func() time.Time { return fixed }

	resp, err := svc.GenerateSignedURL(context.Background(), SignedURLRequest{
		ContentType: MIMEImageJPEG,
		SizeBytes:   4 * 1024 * 1024,
		Domain:      "museum.example.com",
	})
	if err != nil {
		t.Fatalf("GenerateSignedURL failed: %v", err)
	}

	if !strings.Contains(resp.URL, "panoramas-test") {
		t.Errorf("URL %q missing bucket", resp.URL)
	}
	if !strings.Contains(resp.URL, "X-Amz-Signature") {
		t.Errorf("URL %q is not presigned", resp.URL)
	}
	if !strings.HasPrefix(resp.Key, "panoramas/museum.example.com/") {
		t.Errorf("key = %q", resp.Key)
	}
	if got := resp.ExpiresAt; !got.Equal(fixed.Add(5 * time.Minute)) {
		t.Errorf("expires_at = %v, want %v", got, fixed.Add(5*time.Minute))
	}
}

func TestGenerateSignedURLValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GenerateSignedURL(ctx, SignedURLRequest{
		ContentType: "video/mp4",
		SizeBytes:   1024,
	}); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("unexpected error: %v", err)
	}

	if _, err := svc.GenerateSignedURL(ctx, SignedURLRequest{
		ContentType: MIMEImageJPEG,
		SizeBytes:   svc.MaxSizeBytes() + 1,
	}); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("unexpected error: %v", err)
	}
}
