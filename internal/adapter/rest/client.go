package rest

import (
	"time"

	"github.com/go-resty/resty/v2"

	"shopsync/pkg/errors"
)

// TokenProvider returns the current access token, or "" when logged out.
// The bearer header is attached per request so a refreshed token is picked
// up without rebuilding the client.
type TokenProvider func() string

type Client struct {
	http *resty.Client
}

func NewClient(baseURL string, timeout time.Duration, token TokenProvider) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	if token != nil {
		http.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
			if t := token(); t != "" {
				req.SetHeader("Authorization", "Bearer "+t)
			}
			return nil
		})
	}

	return &Client{http: http}
}

func (c *Client) R() *resty.Request {
	return c.http.R()
}

// check folds a transport error and a non-2xx status into one AppError.
func check(resp *resty.Response, err error, what string) error {
	if err != nil {
		return errors.Unavailable(what+" request failed", err)
	}
	if resp.IsError() {
		return errors.FromStatus(resp.StatusCode(), what)
	}
	return nil
}
