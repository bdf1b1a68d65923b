package media

import "testing"

func TestIsAllowedContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{"image/jpeg", true},
		{"image/webp", true},
		{"image/svg+xml", true},
		{"video/mp4", true},
		{"audio/flac", true},
		{"application/pdf", true},
		{"application/zip", true},
		{"text/plain", true},
		{"text/markdown", true},

		// Parameters and casing are ignored.
		{"text/plain; charset=utf-8", true},
		{"  Application/JSON ; charset=utf-8 ", true},

		// Executable or unknown payloads stay out.
		{"application/x-msdownload", false},
		{"application/x-executable", false},
		{"application/octet-stream", false},
		{"text/html", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsAllowedContentType(tt.contentType); got != tt.want {
			t.Errorf("IsAllowedContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestIsImageContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{"image/jpeg", true},
		{"image/PNG", true},
		{"image/gif", true},
		{"image/tiff", true},

		// Allowed for upload but not decodable by the pipeline.
		{"image/svg+xml", false},
		{"image/avif", false},

		{"video/mp4", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsImageContentType(tt.contentType); got != tt.want {
			t.Errorf("IsImageContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestCanonicalMIME(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"image/jpeg", "image/jpeg"},
		{"IMAGE/JPEG", "image/jpeg"},
		{"text/plain; charset=utf-8", "text/plain"},
		{"  Application/JSON ; charset=utf-8 ", "application/json"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := canonicalMIME(tt.input); got != tt.want {
			t.Errorf("canonicalMIME(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
