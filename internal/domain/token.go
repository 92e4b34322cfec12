package domain

// Token type discriminators. Access tokens carry no explicit type.
const (
	TokenTypeRefresh = "refresh"
	TokenTypeTwoFA   = "2fa-temp"
)

// TokenClaims represents the identity claims carried by issued JWTs
type TokenClaims struct {
	UserID      string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	IsAdmin     bool   `json:"isAdmin"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Type        string `json:"type,omitempty"`
}

// TokenPair represents a freshly issued access/refresh token pair
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
