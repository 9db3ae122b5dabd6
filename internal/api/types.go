package api

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Flag is a boolean that tolerates the backend's mixed encodings:
// true/false, 0/1, "0"/"1"/"true"/"false" and null.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		*f = false
	case bytes.Equal(trimmed, []byte("true")):
		*f = true
	case bytes.Equal(trimmed, []byte("false")):
		*f = false
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		*f = Flag(s != "" && s != "0" && !strings.EqualFold(s, "false"))
	default:
		n, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return err
		}
		*f = n != 0
	}
	return nil
}

// User mirrors /auth/me and the user object embedded in auth responses.
type User struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// Label returns the display name, whichever field the backend filled.
func (u User) Label() string {
	if strings.TrimSpace(u.DisplayName) != "" {
		return u.DisplayName
	}
	return u.Name
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	DisplayName     string `json:"displayName" validate:"required,min=3,max=50"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
	User        User   `json:"user"`
}

// ExpiresAt converts ExpiresIn (seconds) into a deadline relative to now.
// The zero time means the server did not say.
func (a AuthResponse) ExpiresAt(now time.Time) time.Time {
	if a.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(a.ExpiresIn) * time.Second)
}

// Category is a spot category used by the filter.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Facilities groups the facility flags shared by list and detail payloads.
type Facilities struct {
	DiaperChanging Flag `json:"diaperChanging"`
	StrollerOK     Flag `json:"strollerOk"`
	Playground     Flag `json:"playground"`
	Athletics      Flag `json:"athletics"`
	WaterPlay      Flag `json:"waterPlay"`
	Indoor         Flag `json:"indoor"`
}

// Spot is a list entry from GET /spots.
type Spot struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Area         string `json:"area"`
	PriceType    string `json:"priceType"`
	CategoryName string `json:"categoryName"`
	TargetAge    string `json:"targetAge"`
	GoogleMapURL string `json:"googleMapUrl"`
	IsFavorite   Flag   `json:"isFavorite"`
	Facilities
}

// SpotDetail is the payload of GET /spots/{id}.
type SpotDetail struct {
	Spot
	ParkingInfo      string `json:"parkingInfo"`
	ToiletInfo       string `json:"toiletInfo"`
	StayingTime      string `json:"stayingTime"`
	ConvenienceStore string `json:"convenienceStore"`
	RestaurantInfo   string `json:"restaurantInfo"`
	ClosedDays       string `json:"closedDays"`
	OfficialURL      string `json:"officialUrl"`
	Notes            string `json:"notes"`
}

// SpotFilter configures GET /spots.
type SpotFilter struct {
	Keyword     string
	CategoryIDs []int64
	Price       []string
	Age         []string
	Facilities  []string
}

// Values encodes the filter with repeated keys for list parameters.
func (f SpotFilter) Values() url.Values {
	values := url.Values{}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		values.Set("keyword", kw)
	}
	for _, id := range f.CategoryIDs {
		values.Add("categoryIds", strconv.FormatInt(id, 10))
	}
	for _, p := range f.Price {
		values.Add("price", p)
	}
	for _, a := range f.Age {
		values.Add("age", a)
	}
	for _, fac := range f.Facilities {
		values.Add("facilities", fac)
	}
	return values
}

// Review is an entry of GET /spots/{id}/reviews.
type Review struct {
	ID        int64  `json:"id"`
	SpotID    int64  `json:"spotId"`
	UserID    int64  `json:"userId"`
	UserName  string `json:"userName"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	VisitedAt string `json:"visitedAt"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// ParsedCreatedAt returns the parsed CreatedAt timestamp.
func (r Review) ParsedCreatedAt() time.Time {
	return parseTime(r.CreatedAt)
}

// ReviewRequest is the body for creating or updating a review.
type ReviewRequest struct {
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"max=1000"`
	VisitedAt string `json:"visitedAt,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateProfileRequest is the body of PUT /users/me/profile.
type UpdateProfileRequest struct {
	DisplayName string `json:"displayName" validate:"required,min=3,max=50"`
	Email       string `json:"email" validate:"required,email,max=255"`
}

// ChangePasswordRequest is the body of PUT /users/me/password.
type ChangePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword" validate:"required"`
	NewPassword        string `json:"newPassword" validate:"required,min=6,nefield=CurrentPassword"`
	NewPasswordConfirm string `json:"newPasswordConfirm" validate:"required,eqfield=NewPassword"`
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
