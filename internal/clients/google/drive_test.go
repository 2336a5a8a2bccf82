package google

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestExtractFolderID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://drive.google.com/drive/folders/1AbC_dEf-123", "1AbC_dEf-123"},
		{"https://drive.google.com/drive/folders/1AbC?usp=sharing", "1AbC"},
		{"https://drive.google.com/drive/u/0/folders/xyz789", "xyz789"},
		{"https://drive.google.com/file/d/notafolder/view", ""},
		{"not a url at all", ""},
	}
	for _, tt := range tests {
		if got := ExtractFolderID(tt.url); got != tt.want {
			t.Errorf("ExtractFolderID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(&googleapi.Error{Code: 429}) {
		t.Error("429 should be rate limited")
	}
	if !IsRateLimited(&googleapi.Error{Code: 403}) {
		t.Error("403 should be rate limited")
	}
	if IsRateLimited(&googleapi.Error{Code: 500}) {
		t.Error("500 should not be rate limited")
	}
	if IsRateLimited(errors.New("connection reset")) {
		t.Error("plain errors should not be rate limited")
	}
	if IsRateLimited(nil) {
		t.Error("nil should not be rate limited")
	}

	wrapped := fmt.Errorf("download file abc: %w", &googleapi.Error{Code: 429})
	if !IsRateLimited(wrapped) {
		t.Error("wrapped rate-limit errors should still be recognized")
	}
}
