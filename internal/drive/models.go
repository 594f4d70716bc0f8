package drive

import (
	"time"

	"github.com/nytimes/library-sub000/internal/docs"
)

// listFile is one file resource from the listing API.
type listFile struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	MimeType          string   `json:"mimeType"`
	Parents           []string `json:"parents"`
	ModifiedTime      string   `json:"modifiedTime"`
	WebViewLink       string   `json:"webViewLink"`
	LastModifyingUser struct {
		DisplayName  string `json:"displayName"`
		EmailAddress string `json:"emailAddress"`
	} `json:"lastModifyingUser"`
}

// ListPage is one page of the listing API response.
type ListPage struct {
	NextPageToken string     `json:"nextPageToken"`
	Files         []listFile `json:"files"`
}

func (f *listFile) toRecord() *docs.FileRecord {
	modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	user := f.LastModifyingUser.EmailAddress
	if user == "" {
		user = f.LastModifyingUser.DisplayName
	}
	return &docs.FileRecord{
		ID:                f.ID,
		Name:              f.Name,
		MimeType:          f.MimeType,
		Parents:           f.Parents,
		ModifiedTime:      modified,
		LastModifyingUser: user,
		WebViewLink:       f.WebViewLink,
	}
}
