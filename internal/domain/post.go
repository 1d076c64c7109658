package domain

// Post categories used by the community board.
const (
	CategoryFree     = "free"
	CategoryQuestion = "question"
	CategoryReview   = "review"
	CategoryNotice   = "notice"
)

// Post is a community board entry. ContentHTML is sanitized before it is stored.
type Post struct {
	Entity
	UserID      string `json:"user_id"`
	AuthorName  string `json:"author_name,omitempty"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	ContentHTML string `json:"content_html"`
	Excerpt     string `json:"excerpt,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Item projects the post into a directory item.
func (p *Post) Item(likeCount int) Item {
	return Item{
		ID:        p.ID,
		Resource:  ResourcePosts,
		Title:     p.Title,
		Subtitle:  p.Category,
		ImageURL:  p.ImageURL,
		AuthorID:  p.UserID,
		Excerpt:   p.Excerpt,
		LikeCount: likeCount,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
