package rest

import (
	"context"

	"shopsync/internal/domain/entity"
)

type AuthClient struct {
	client *Client
}

func NewAuthClient(client *Client) *AuthClient {
	return &AuthClient{client: client}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type LoginResponse struct {
	User         entity.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

func (a *AuthClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(LoginRequest{Username: username, Password: password}).
		SetResult(&out).
		Post("/auth/login")
	if err := check(resp, err, "login"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AuthClient) Register(ctx context.Context, req RegisterRequest) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/auth/register")
	return check(resp, err, "register")
}

func (a *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	var out LoginResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&out).
		Post("/auth/refresh-token")
	if err := check(resp, err, "refresh token"); err != nil {
		return nil, err
	}
	return &out, nil
}
