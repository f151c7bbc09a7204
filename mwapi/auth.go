package mwapi

import (
	"context"
	"net/url"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/logger"
)

type tokensResponse struct {
	Query struct {
		Tokens struct {
			LoginToken string `json:"logintoken"`
			CSRFToken  string `json:"csrftoken"`
		} `json:"tokens"`
	} `json:"query"`
}

type loginResponse struct {
	Login struct {
		Result     string `json:"result"`
		Reason     string `json:"reason"`
		LgUsername string `json:"lgusername"`
	} `json:"login"`
}

// Login signs in with a bot password. Session cookies stay in the client.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" {
		return errors.WithHint(errors.New("no wiki username configured"),
			"set wiki.username or SDZEROBOT_WIKI_USERNAME to a bot password user such as Bot@reports")
	}

	token, err := c.token(ctx, "login")
	if err != nil {
		return err
	}

	var resp loginResponse
	err = c.post(ctx, url.Values{
		"action":     {"login"},
		"lgname":     {c.username},
		"lgpassword": {c.password},
		"lgtoken":    {token},
	}, &resp)
	if err != nil {
		return errors.Wrap(err, "login")
	}
	if resp.Login.Result != "Success" {
		return errors.Newf("login as %s failed: %s %s", c.username, resp.Login.Result, resp.Login.Reason)
	}

	c.mu.Lock()
	c.csrfToken = ""
	c.mu.Unlock()

	c.logger.Infow("Logged in", logger.FieldUser, resp.Login.LgUsername)
	return nil
}

// token fetches a fresh token of the given type
func (c *Client) token(ctx context.Context, kind string) (string, error) {
	var resp tokensResponse
	err := c.get(ctx, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {kind},
	}, &resp)
	if err != nil {
		return "", errors.Wrapf(err, "fetch %s token", kind)
	}

	var token string
	switch kind {
	case "login":
		token = resp.Query.Tokens.LoginToken
	default:
		token = resp.Query.Tokens.CSRFToken
	}
	if token == "" {
		return "", errors.Newf("empty %s token", kind)
	}
	return token, nil
}

// csrf returns the cached edit token, fetching it when needed
func (c *Client) csrf(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()
	if token != "" && !refresh {
		return token, nil
	}

	token, err := c.token(ctx, "csrf")
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.csrfToken = token
	c.mu.Unlock()
	return token, nil
}
