package models

// ProcessRequest is the input to content transformation.
type ProcessRequest struct {
	Title          string
	Body           string
	SourceLanguage string
	TargetLanguage string
	// Categories maps destination category ids to display names.
	Categories map[string]string
}

// ProcessResult is the transformed content.
type ProcessResult struct {
	Title           string `json:"title"`
	Body            string `json:"content"`
	MetaDescription string `json:"meta_description"`
	Category        string `json:"category_id"`
	Model           string `json:"-"`
}

// ImageRequest describes the article an image is needed for.
type ImageRequest struct {
	Title            string
	Body             string
	OriginalImageURL string
	Site             *Site
}

// ImageReview is a vision model's verdict on a candidate image.
type ImageReview struct {
	Clean        bool   `json:"clean"`
	HasWatermark bool   `json:"has_watermark"`
	HasText      bool   `json:"has_text"`
	HasLogo      bool   `json:"has_logo"`
	Quality      string `json:"quality"`
	Reason       string `json:"reason"`
}

// ResolvedImage is a watermarked image ready for upload. Source is
// ImageSourceNone and Data is empty when no provider succeeded.
type ResolvedImage struct {
	Source      ImageSource
	URL         string
	Data        []byte
	ContentType string
	Filename    string
	AltText     string
}

// Found reports whether an image was resolved.
func (r *ResolvedImage) Found() bool {
	return r != nil && r.Source != ImageSourceNone && len(r.Data) > 0
}

// Post is the content handed to the publisher.
type Post struct {
	Title           string
	Body            string
	MetaDescription string
	CategoryID      int64 // 0 leaves the post uncategorized
	AuthorID        int64
	Image           *ResolvedImage
}

// PublishResult identifies the created post.
type PublishResult struct {
	PostID  int64  `json:"post_id"`
	URL     string `json:"url"`
	MediaID int64  `json:"media_id,omitempty"`
}

// ConnectionInfo is returned by a destination credential check.
type ConnectionInfo struct {
	OK       bool   `json:"ok"`
	UserID   int64  `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Error    string `json:"error,omitempty"`
}
