package media

import (
	"testing"

	"github.com/google/uuid"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "report.pdf", want: "report.pdf"},
		{name: "path traversal", in: "../../etc/passwd", want: "passwd"},
		{name: "windows path", in: `C:\Users\me\notes.txt`, want: "notes.txt"},
		{name: "reserved chars", in: `a:b*c?.txt`, want: "a_b_c_.txt"},
		{name: "control chars", in: "a\x00b\nc.txt", want: "abc.txt"},
		{name: "dot only", in: "..", want: "file"},
		{name: "empty", in: "", want: "file"},
		{name: "unicode kept", in: "résumé.pdf", want: "résumé.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSharedFileKey(t *testing.T) {
	t.Parallel()

	serverID := uuid.Must(uuid.NewV7())
	fileID := uuid.Must(uuid.NewV7())
	folderID := uuid.Must(uuid.NewV7())

	root := SharedFileKey(serverID, nil, fileID, "doc.pdf")
	want := serverID.String() + "/shared/root/" + fileID.String() + "/doc.pdf"
	if root != want {
		t.Errorf("root key = %q, want %q", root, want)
	}

	nested := SharedFileKey(serverID, &folderID, fileID, "doc.pdf")
	want = serverID.String() + "/shared/" + folderID.String() + "/" + fileID.String() + "/doc.pdf"
	if nested != want {
		t.Errorf("nested key = %q, want %q", nested, want)
	}
}

func TestKeyFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "local url", url: "http://localhost:8080/media/a/b/file.txt", want: "a/b/file.txt"},
		{name: "https url", url: "https://files.example.com/media/x.png", want: "x.png"},
		{name: "no media mount", url: "https://example.com/static/x.png", want: ""},
		{name: "empty", url: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := KeyFromURL(tt.url); got != tt.want {
				t.Errorf("KeyFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestAttachmentKeyLayout(t *testing.T) {
	t.Parallel()

	serverID := uuid.Must(uuid.NewV7())
	channelID := uuid.Must(uuid.NewV7())
	attachmentID := uuid.Must(uuid.NewV7())

	got := AttachmentKey(serverID, channelID, attachmentID, "../shot.png")
	want := serverID.String() + "/" + channelID.String() + "/" + attachmentID.String() + "/shot.png"
	if got != want {
		t.Errorf("AttachmentKey() = %q, want %q", got, want)
	}
}
