package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/famigo/famigo/internal/apierr"
)

// Login exchanges email and password for a credential and the user.
func (c *Client) Login(ctx context.Context, body LoginRequest) (AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", body)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, body RegisterRequest) (AuthResponse, error) {
	return c.authenticate(ctx, "/auth/register", body)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (AuthResponse, error) {
	resp, ok, err := Fetch[AuthResponse](ctx, c, Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return AuthResponse{}, err
	}
	if !ok || strings.TrimSpace(resp.AccessToken) == "" {
		return AuthResponse{}, errMissingToken(path)
	}
	return resp, nil
}

// Me fetches the signed-in user.
func (c *Client) Me(ctx context.Context) (User, error) {
	user, _, err := Fetch[User](ctx, c, Request{Method: http.MethodGet, Path: "/auth/me", RequireAuth: true})
	return user, err
}

// Categories lists spot categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	list, _, err := Fetch[[]Category](ctx, c, Request{Method: http.MethodGet, Path: "/categories"})
	return list, err
}

// Spots searches spots. A stored credential personalizes IsFavorite.
func (c *Client) Spots(ctx context.Context, filter SpotFilter) ([]Spot, error) {
	list, _, err := Fetch[[]Spot](ctx, c, Request{Method: http.MethodGet, Path: "/spots", Query: filter.Values()})
	return list, err
}

// Spot fetches one spot's detail.
func (c *Client) Spot(ctx context.Context, id int64) (SpotDetail, error) {
	detail, _, err := Fetch[SpotDetail](ctx, c, Request{Method: http.MethodGet, Path: spotPath(id)})
	return detail, err
}

// Favorites lists the signed-in user's favorite spots.
func (c *Client) Favorites(ctx context.Context) ([]Spot, error) {
	list, _, err := Fetch[[]Spot](ctx, c, Request{Method: http.MethodGet, Path: "/favorites", RequireAuth: true})
	return list, err
}

// AddFavorite marks a spot as favorite.
func (c *Client) AddFavorite(ctx context.Context, spotID int64) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: spotPath(spotID) + "/favorites", RequireAuth: true}, nil)
}

// RemoveFavorite unmarks a spot.
func (c *Client) RemoveFavorite(ctx context.Context, spotID int64) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: spotPath(spotID) + "/favorites", RequireAuth: true}, nil)
}

// Reviews lists reviews of a spot.
func (c *Client) Reviews(ctx context.Context, spotID int64) ([]Review, error) {
	list, _, err := Fetch[[]Review](ctx, c, Request{Method: http.MethodGet, Path: spotPath(spotID) + "/reviews"})
	return list, err
}

// CreateReview posts a review. The created review is returned when the
// server echoes it; ok is false for an empty response.
func (c *Client) CreateReview(ctx context.Context, spotID int64, body ReviewRequest) (review Review, ok bool, err error) {
	return Fetch[Review](ctx, c, Request{
		Method:      http.MethodPost,
		Path:        spotPath(spotID) + "/reviews",
		Body:        body,
		RequireAuth: true,
	})
}

// UpdateReview replaces a review's content.
func (c *Client) UpdateReview(ctx context.Context, spotID, reviewID int64, body ReviewRequest) (review Review, ok bool, err error) {
	return Fetch[Review](ctx, c, Request{
		Method:      http.MethodPut,
		Path:        reviewPath(spotID, reviewID),
		Body:        body,
		RequireAuth: true,
	})
}

// DeleteReview removes a review.
func (c *Client) DeleteReview(ctx context.Context, spotID, reviewID int64) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: reviewPath(spotID, reviewID), RequireAuth: true}, nil)
}

// UpdateProfile changes display name and email together.
func (c *Client) UpdateProfile(ctx context.Context, body UpdateProfileRequest) (User, error) {
	user, _, err := Fetch[User](ctx, c, Request{Method: http.MethodPut, Path: "/users/me/profile", Body: body, RequireAuth: true})
	return user, err
}

// UpdateDisplayName changes only the display name.
func (c *Client) UpdateDisplayName(ctx context.Context, displayName string) (User, error) {
	body := map[string]string{"displayName": displayName}
	user, _, err := Fetch[User](ctx, c, Request{Method: http.MethodPut, Path: "/users/me/display-name", Body: body, RequireAuth: true})
	return user, err
}

// UpdateEmail changes only the email address.
func (c *Client) UpdateEmail(ctx context.Context, email string) (User, error) {
	body := map[string]string{"email": email}
	user, _, err := Fetch[User](ctx, c, Request{Method: http.MethodPut, Path: "/users/me/email", Body: body, RequireAuth: true})
	return user, err
}

// ChangePassword updates the password.
func (c *Client) ChangePassword(ctx context.Context, body ChangePasswordRequest) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: "/users/me/password", Body: body, RequireAuth: true}, nil)
}

// Withdraw deletes the signed-in account.
func (c *Client) Withdraw(ctx context.Context) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: "/users/me", RequireAuth: true}, nil)
}

func errMissingToken(path string) error {
	return apierr.ClassifyTransport(fmt.Errorf("decode %s response: no access token", path))
}

func spotPath(id int64) string {
	return fmt.Sprintf("/spots/%d", id)
}

func reviewPath(spotID, reviewID int64) string {
	return fmt.Sprintf("/spots/%d/reviews/%d", spotID, reviewID)
}
