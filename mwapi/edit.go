package mwapi

import (
	"context"
	"net/url"
	"time"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/logger"
)

type editResponse struct {
	Edit struct {
		Result   string `json:"result"`
		NewRevID int64  `json:"newrevid"`
		NoChange bool   `json:"nochange"`
	} `json:"edit"`
}

// Edit saves a page. Edits wait for the client's rate limiter; a stale
// token is refreshed once.
func (c *Client) Edit(ctx context.Context, req EditRequest) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "wait for edit slot")
	}

	err := c.edit(ctx, req, false)
	if IsAPIError(err, "badtoken") {
		c.logger.Debugw("Edit token expired, refreshing", logger.FieldPage, req.Title)
		err = c.edit(ctx, req, true)
	}
	return err
}

func (c *Client) edit(ctx context.Context, req EditRequest, refreshToken bool) error {
	token, err := c.csrf(ctx, refreshToken)
	if err != nil {
		return err
	}

	params := url.Values{
		"action":  {"edit"},
		"title":   {req.Title},
		"text":    {req.Text},
		"summary": {req.Summary},
		"token":   {token},
	}
	if c.username != "" {
		params.Set("assert", "user")
	}
	if req.Bot {
		params.Set("bot", "1")
	}
	if req.Minor {
		params.Set("minor", "1")
	}
	if req.NoCreate {
		params.Set("nocreate", "1")
	}
	if !req.BaseTimestamp.IsZero() {
		params.Set("basetimestamp", req.BaseTimestamp.UTC().Format(time.RFC3339))
	}

	var resp editResponse
	if err := c.post(ctx, params, &resp); err != nil {
		return err
	}
	if resp.Edit.Result != "Success" {
		return &APIError{Code: "editfailed", Info: "edit result " + resp.Edit.Result}
	}

	c.logger.Debugw("Saved page",
		logger.FieldPage, req.Title,
		logger.FieldRevision, resp.Edit.NewRevID,
		"nochange", resp.Edit.NoChange)
	return nil
}
