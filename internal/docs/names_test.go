package docs

import (
	"reflect"
	"testing"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Welcome | home", "Welcome"},
		{"01 - Getting Started", "Getting Started"},
		{"3. Deployment", "Deployment"},
		{"notes.txt", "notes"},
		{"Runbook | team, hidden", "Runbook"},
		{"Plain Title", "Plain Title"},
		{"  Spaced  ", "Spaced"},
	}

	for _, tt := range tests {
		if got := CleanName(tt.raw); got != tt.want {
			t.Errorf("CleanName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Getting Started", "getting-started"},
		{"FAQs & Tips", "faqs-tips"},
		{"  Already--slugged ", "already-slugged"},
		{"Trash", "trash"},
	}

	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"Welcome | home", []string{"home"}},
		{"Runbook | Team, Hidden", []string{"team", "hidden"}},
		{"No tags here", nil},
		{"Trailing | ", nil},
		{"Mix | playlist,home,", []string{"playlist", "home"}},
	}

	for _, tt := range tests {
		if got := ParseTags(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseTags(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestSortKey(t *testing.T) {
	if got := SortKey("02 - Setup", "Setup"); got != "02" {
		t.Errorf("SortKey with numeric prefix = %q, want %q", got, "02")
	}
	if got := SortKey("Setup", "Setup"); got != "Setup" {
		t.Errorf("SortKey without prefix = %q, want %q", got, "Setup")
	}
}

func TestResourceType(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{MimeDocument, "document"},
		{MimeFolder, "folder"},
		{"text/html", "text/html"},
		{"application/pdf", "application/pdf"},
		{"application/vnd.google-apps.spreadsheet", "spreadsheet"},
	}

	for _, tt := range tests {
		if got := ResourceType(tt.mime); got != tt.want {
			t.Errorf("ResourceType(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}
