package library

import (
	"context"
	"net/http"
)

// Categories wraps the public category listing.
type Categories struct {
	c *Client
}

func (cs *Categories) List(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := cs.c.do(ctx, http.MethodGet, "/categories", nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Users wraps the user endpoints the client needs.
type Users struct {
	c *Client
}

// Me returns the profile of the token's owner.
func (u *Users) Me(ctx context.Context) (*UserProfile, error) {
	var p UserProfile
	if err := u.c.do(ctx, http.MethodGet, "/users/me", nil, true, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
