package domain

// ViewerKind distinguishes signed-in users from anonymous visitors.
type ViewerKind string

const (
	ViewerAuthenticated ViewerKind = "authenticated"
	ViewerGuest         ViewerKind = "guest"
)

// Viewer is the identity engagement records are keyed by.
type Viewer struct {
	Kind ViewerKind `json:"kind"`
	ID   string     `json:"id"`
}

// AuthenticatedViewer returns the viewer for a signed-in user.
func AuthenticatedViewer(userID string) Viewer {
	return Viewer{Kind: ViewerAuthenticated, ID: userID}
}

// GuestViewer returns the viewer for an anonymous visitor.
func GuestViewer(guestID string) Viewer {
	return Viewer{Kind: ViewerGuest, ID: guestID}
}

// IsZero reports whether no identity is set.
func (v Viewer) IsZero() bool {
	return v.ID == ""
}

// IsGuest reports whether the viewer is anonymous.
func (v Viewer) IsGuest() bool {
	return v.Kind == ViewerGuest
}

// Session is the signed-in state reported by the auth service.
type Session struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}
