package delphi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Topic is a node in the remote content tree as the API reports it.
type Topic struct {
	ID        string
	Title     string
	TypeID    string
	ParentID  string
	VersionID string
}

// topicResponse mirrors the topic JSON exactly. Unexported — callers get
// the normalized Topic.
type topicResponse struct {
	TopicID         string `json:"topicId"`
	TopicTitle      string `json:"topicTitle"`
	TopicTypeID     string `json:"topicTypeId"`
	ParentTopicID   string `json:"parentTopicId"`
	TopicVersionID  string `json:"topicVersionId"`
	TopicVersionKey string `json:"topicVersionKey"`
}

func (t *topicResponse) toTopic() Topic {
	version := t.TopicVersionID
	if version == "" {
		version = t.TopicVersionKey
	}

	return Topic{
		ID:        t.TopicID,
		Title:     t.TopicTitle,
		TypeID:    t.TopicTypeID,
		ParentID:  t.ParentTopicID,
		VersionID: version,
	}
}

// createTopicRequest is the minimal accepted create payload. The optional
// fields cover the richer contract some deployments require; they are
// omitted when empty.
type createTopicRequest struct {
	TopicID            string `json:"topicId"`
	TopicTitle         string `json:"topicTitle"`
	TopicTypeID        string `json:"topicTypeId"`
	CopyParentTags     bool   `json:"copyParentTags"`
	ParentTopicID      string `json:"parentTopicId,omitempty"`
	TopicTypeNamespace string `json:"topicTypeNamespace,omitempty"`
	Language           string `json:"language,omitempty"`
}

// CreateTopic creates a topic. parentID is empty only for a tree root.
// Returns the new topic version identifier when the service reports one.
func (c *Client) CreateTopic(ctx context.Context, id, title, typeID, parentID string) (string, error) {
	req := createTopicRequest{
		TopicID:        id,
		TopicTitle:     title,
		TopicTypeID:    typeID,
		CopyParentTags: false,
		ParentTopicID:  parentID,
	}

	var resp topicResponse
	if err := c.DoJSON(ctx, http.MethodPost, "/topics", req, &resp); err != nil {
		return "", err
	}

	return resp.toTopic().VersionID, nil
}

// GetTopic fetches a single topic by ID.
func (c *Client) GetTopic(ctx context.Context, id string) (*Topic, error) {
	var resp topicResponse
	if err := c.DoJSON(ctx, http.MethodGet, "/topics/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}

	topic := resp.toTopic()

	return &topic, nil
}

// UpdateMetadata replaces a topic's metadata mapping.
func (c *Client) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	body := map[string]any{"metadata": metadata}

	return c.DoJSON(ctx, http.MethodPut, "/topics/"+url.PathEscape(id), body, nil)
}

// DeleteTopic removes a topic. The caller is responsible for deleting
// children first — the service rejects deleting a topic with live children.
func (c *Client) DeleteTopic(ctx context.Context, id string) error {
	return c.DoJSON(ctx, http.MethodDelete, "/topics/"+url.PathEscape(id), nil, nil)
}

// Checkout acquires the exclusive edit lock on a topic.
func (c *Client) Checkout(ctx context.Context, id string) error {
	return c.DoJSON(ctx, http.MethodPost, "/topics/"+url.PathEscape(id)+"/checkout", struct{}{}, nil)
}

// Checkin releases the edit lock, recording an optional comment.
func (c *Client) Checkin(ctx context.Context, id, comment string) error {
	body := map[string]string{"comment": comment}

	return c.DoJSON(ctx, http.MethodPost, "/topics/"+url.PathEscape(id)+"/checkin", body, nil)
}

// Part is a named content fragment attached to a topic.
type Part struct {
	Name    string         `json:"name"`
	Content map[string]any `json:"content"`
}

// GetParts lists all parts of a topic.
func (c *Client) GetParts(ctx context.Context, topicID string) ([]Part, error) {
	var parts []Part
	if err := c.DoJSON(ctx, http.MethodGet, "/topics/"+url.PathEscape(topicID)+"/parts", nil, &parts); err != nil {
		return nil, err
	}

	return parts, nil
}

// CreatePart adds a new part to a checked-out topic.
func (c *Client) CreatePart(ctx context.Context, topicID, name string, content map[string]any) error {
	body := Part{Name: name, Content: content}

	return c.DoJSON(ctx, http.MethodPost, "/topics/"+url.PathEscape(topicID)+"/parts", body, nil)
}

// UpdatePart replaces the content of an existing part.
func (c *Client) UpdatePart(ctx context.Context, topicID, name string, content map[string]any) error {
	body := Part{Name: name, Content: content}
	path := "/topics/" + url.PathEscape(topicID) + "/parts/" + url.PathEscape(name)

	return c.DoJSON(ctx, http.MethodPut, path, body, nil)
}

// DeletePart removes a part from a checked-out topic.
func (c *Client) DeletePart(ctx context.Context, topicID, name string) error {
	path := "/topics/" + url.PathEscape(topicID) + "/parts/" + url.PathEscape(name)

	return c.DoJSON(ctx, http.MethodDelete, path, nil, nil)
}

// Relation links one topic to another with a given role.
type Relation struct {
	Role     string `json:"role"`
	TargetID string `json:"targetId"`
}

// AddRelation records a relation on a topic.
func (c *Client) AddRelation(ctx context.Context, topicID string, rel Relation) error {
	return c.DoJSON(ctx, http.MethodPost, "/topics/"+url.PathEscape(topicID)+"/relations", rel, nil)
}

// AddTag attaches a tag to a topic.
func (c *Client) AddTag(ctx context.Context, topicID, tag string) error {
	body := map[string]string{"tag": tag}

	return c.DoJSON(ctx, http.MethodPost, "/topics/"+url.PathEscape(topicID)+"/tags", body, nil)
}

// Export streams the full content export. The caller closes the reader.
// Any API failure here is fatal — there is no per-topic granularity to
// recover at.
func (c *Client) Export(ctx context.Context) (io.ReadCloser, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/export", nil)
	if err != nil {
		return nil, fmt.Errorf("delphi: export: %w", err)
	}

	return resp.Body, nil
}
