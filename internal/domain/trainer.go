package domain

// Trainer is a listing in the trainer directory.
type Trainer struct {
	Entity
	UserID       string `json:"user_id,omitempty"`
	Name         string `json:"name"`
	Level        string `json:"level,omitempty"`
	Specialty    string `json:"specialty,omitempty"`
	Region       string `json:"region"`
	Experience   string `json:"experience,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Introduction string `json:"introduction,omitempty"`
}

// Item projects the trainer into a directory item.
func (t *Trainer) Item(likeCount int) Item {
	subtitle := t.Specialty
	if t.Level != "" {
		if subtitle != "" {
			subtitle = t.Level + " · " + subtitle
		} else {
			subtitle = t.Level
		}
	}
	return Item{
		ID:        t.ID,
		Resource:  ResourceTrainers,
		Title:     t.Name,
		Subtitle:  subtitle,
		Region:    t.Region,
		ImageURL:  t.ImageURL,
		AuthorID:  t.UserID,
		Excerpt:   truncateRunes(t.Introduction, ExcerptLength),
		LikeCount: likeCount,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
