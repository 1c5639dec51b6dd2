package client

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/iliyamo/pet-care-marketplace/internal/storage"
)

// Upload stores r at objectPath in the attachments bucket.
func (c *Client) Upload(ctx context.Context, objectPath string, r io.Reader, contentType string) error {
	if err := c.ensureFresh(ctx); err != nil {
		return err
	}
	req, err := c.request(ctx, http.MethodPut, "/v1/storage/"+storage.Attachments+"/"+strings.TrimPrefix(objectPath, "/"), r)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.send(req, nil)
}

// PublicURL is the unauthenticated address of an uploaded object.
func (c *Client) PublicURL(objectPath string) string {
	return c.base + "/storage/" + storage.Attachments + "/" + strings.TrimPrefix(objectPath, "/")
}
