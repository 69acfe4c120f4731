// Package jira reads and writes stories in Jira Cloud through REST API v3.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/harrison/selfheal/internal/config"
	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/restclient"
	"github.com/harrison/selfheal/internal/story"
)

const issueFields = "summary,description,status,issuetype,labels"

// Client talks to one Jira site with basic auth (email plus API token).
type Client struct {
	cfg  config.JiraConfig
	rest *restclient.Client

	once      sync.Once
	available bool
}

// NewClient creates a Jira client from configuration.
func NewClient(cfg config.JiraConfig) *Client {
	return &Client{
		cfg:  cfg,
		rest: restclient.New(cfg.BaseURL, cfg.Email, cfg.APIToken, cfg.Timeout),
	}
}

// Enabled reports whether the client has enough configuration to be used.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled()
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Labels []string `json:"labels"`
	} `json:"fields"`
}

// GetStory fetches an issue and extracts its acceptance criteria, test
// scenarios and links from the description document.
func (c *Client) GetStory(ctx context.Context, key string) (*models.Story, error) {
	if !c.Enabled() {
		return nil, restclient.ErrNotConfigured
	}

	var resp issueResponse
	path := "/rest/api/3/issue/" + url.PathEscape(key) + "?fields=" + issueFields
	if err := c.rest.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}

	blocks, err := descriptionBlocks(resp.Fields.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s description: %w", key, err)
	}

	id := resp.Key
	if id == "" {
		id = key
	}
	s := &models.Story{
		ID:          id,
		Title:       resp.Fields.Summary,
		Description: story.PlainText(blocks),
		Status:      resp.Fields.Status.Name,
		IssueType:   resp.Fields.IssueType.Name,
		Labels:      resp.Fields.Labels,
	}
	story.Enrich(s, blocks)
	return s, nil
}

// descriptionBlocks accepts a document, a legacy wiki-markup string or null.
func descriptionBlocks(raw json.RawMessage) ([]story.Block, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		return story.ParseMarkdown(text), nil
	}
	var doc Node
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return Blocks(&doc), nil
}

// AddComment posts a plain paragraph comment to an issue.
func (c *Client) AddComment(ctx context.Context, key, text string) error {
	if !c.Enabled() {
		return restclient.ErrNotConfigured
	}
	body := map[string]interface{}{"body": Doc(Paragraph(text))}
	path := "/rest/api/3/issue/" + url.PathEscape(key) + "/comment"
	if err := c.rest.Do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to comment on %s: %w", key, err)
	}
	return nil
}

// CreateRequest describes a new story.
type CreateRequest struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"` // Markdown
	IssueType   string   `json:"issueType,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	ProjectKey  string   `json:"projectKey,omitempty"`
}

// CreateStory creates an issue and returns its key.
func (c *Client) CreateStory(ctx context.Context, req CreateRequest) (string, error) {
	if !c.Enabled() {
		return "", restclient.ErrNotConfigured
	}
	project := req.ProjectKey
	if project == "" {
		project = c.cfg.ProjectKey
	}
	if project == "" {
		return "", fmt.Errorf("no project key for new story")
	}
	issueType := req.IssueType
	if issueType == "" {
		issueType = "Story"
	}

	fields := map[string]interface{}{
		"project":     map[string]string{"key": project},
		"summary":     req.Summary,
		"description": FromMarkdown(req.Description),
		"issuetype":   map[string]string{"name": issueType},
	}
	if len(req.Labels) > 0 {
		fields["labels"] = req.Labels
	}

	var resp struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := c.rest.Do(ctx, http.MethodPost, "/rest/api/3/issue", map[string]interface{}{"fields": fields}, &resp); err != nil {
		return "", fmt.Errorf("failed to create story: %w", err)
	}
	return resp.Key, nil
}

// Ping checks the credentials against the current-user endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return restclient.ErrNotConfigured
	}
	return c.rest.Do(ctx, http.MethodGet, "/rest/api/3/myself", nil, nil)
}

// IsAvailable pings once and caches the result.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if !c.Enabled() {
		return false
	}
	c.once.Do(func() {
		c.available = c.Ping(ctx) == nil
	})
	return c.available
}
