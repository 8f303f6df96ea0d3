package models

import (
	"errors"
	"fmt"
	"io"
)

// VideoRecord is the durable unit of upload history.
// JSON names match the blob format written by earlier releases of the web client.
type VideoRecord struct {
	ID             string   `json:"id" msgpack:"id"`
	Name           string   `json:"name" msgpack:"name"`
	Size           int64    `json:"size" msgpack:"size"`
	MimeType       string   `json:"type" msgpack:"type"`
	LocalReference string   `json:"url" msgpack:"url"` // session-scoped preview, dead after restart
	ShortLink      string   `json:"shortUrl" msgpack:"shortUrl"`
	Slug           string   `json:"slug" msgpack:"slug"`
	AITitle        string   `json:"aiTitle" msgpack:"aiTitle"`
	AIDescription  string   `json:"aiDescription" msgpack:"aiDescription"`
	Tags           []string `json:"tags" msgpack:"tags"`
	CreatedAt      int64    `json:"createdAt" msgpack:"createdAt"` // unix millis
}

// Validate checks that a record read back from storage has the expected shape.
func (v *VideoRecord) Validate() error {
	switch {
	case v.ID == "":
		return errors.New("missing id")
	case v.Name == "":
		return fmt.Errorf("record %s: missing name", v.ID)
	case v.Size < 0:
		return fmt.Errorf("record %s: negative size", v.ID)
	case v.Slug == "":
		return fmt.Errorf("record %s: missing slug", v.ID)
	case v.ShortLink == "":
		return fmt.Errorf("record %s: missing shortUrl", v.ID)
	case v.Tags == nil:
		return fmt.Errorf("record %s: missing tags", v.ID)
	}
	return nil
}

// InsightResult is the metadata produced for one file by the insight generator.
type InsightResult struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// FileSource is a file handed to the upload pipeline by the display layer.
// A nil Body means no file was selected.
type FileSource struct {
	Name     string
	Size     int64
	MimeType string
	Body     io.Reader
}
