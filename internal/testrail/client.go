// Package testrail manages generated test cases and runs in TestRail,
// scoped to one project, suite and section.
package testrail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/selfheal/internal/config"
	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/restclient"
)

// TestRail result status ids.
const (
	StatusPassed  = 1
	StatusBlocked = 2
	StatusRetest  = 4
	StatusFailed  = 5
)

const pageSize = 250

// ErrCaseNotFound is returned by FindCaseByTitle when no case matches.
var ErrCaseNotFound = errors.New("test case not found")

// Case is the TestRail wire shape of a test case.
type Case struct {
	ID             int    `json:"id,omitempty"`
	Title          string `json:"title"`
	SectionID      int    `json:"section_id,omitempty"`
	PriorityID     int    `json:"priority_id,omitempty"`
	TypeID         int    `json:"type_id,omitempty"`
	Refs           string `json:"refs,omitempty"`
	Preconditions  string `json:"custom_preconds,omitempty"`
	StepsSeparated []Step `json:"custom_steps_separated,omitempty"`
}

// Step is one separated step.
type Step struct {
	Content  string `json:"content"`
	Expected string `json:"expected"`
}

// Result is one per-case result pushed to a run.
type Result struct {
	CaseID   int    `json:"case_id"`
	StatusID int    `json:"status_id"`
	Comment  string `json:"comment,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
}

// Run is a created test run.
type Run struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Client talks to one TestRail instance with basic auth (user plus API key).
type Client struct {
	cfg  config.TestRailConfig
	rest *restclient.Client

	once      sync.Once
	available bool
}

// NewClient creates a TestRail client from configuration.
func NewClient(cfg config.TestRailConfig) *Client {
	return &Client{
		cfg:  cfg,
		rest: restclient.New(cfg.BaseURL, cfg.User, cfg.APIKey, cfg.Timeout),
	}
}

// Enabled reports whether the client has enough configuration to be used.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled()
}

func apiPath(endpoint string, query url.Values) string {
	p := "/index.php?/api/v2/" + endpoint
	if len(query) > 0 {
		p += "&" + query.Encode()
	}
	return p
}

type casesPage struct {
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
	Size   int    `json:"size"`
	Cases  []Case `json:"cases"`
	Links  struct {
		Next *string `json:"next"`
	} `json:"_links"`
}

// ListCases returns every case in the configured suite and section.
func (c *Client) ListCases(ctx context.Context) ([]Case, error) {
	if !c.Enabled() {
		return nil, restclient.ErrNotConfigured
	}

	var all []Case
	for offset := 0; ; {
		q := url.Values{}
		if c.cfg.SuiteID > 0 {
			q.Set("suite_id", fmt.Sprint(c.cfg.SuiteID))
		}
		if c.cfg.SectionID > 0 {
			q.Set("section_id", fmt.Sprint(c.cfg.SectionID))
		}
		q.Set("limit", fmt.Sprint(pageSize))
		q.Set("offset", fmt.Sprint(offset))

		var page casesPage
		if err := c.rest.Do(ctx, http.MethodGet, apiPath(fmt.Sprintf("get_cases/%d", c.cfg.ProjectID), q), nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list cases: %w", err)
		}
		all = append(all, page.Cases...)
		if page.Links.Next == nil || *page.Links.Next == "" || len(page.Cases) == 0 {
			return all, nil
		}
		offset += len(page.Cases)
	}
}

// FindCaseByTitle returns the case whose title matches exactly.
func (c *Client) FindCaseByTitle(ctx context.Context, title string) (*Case, error) {
	cases, err := c.ListCases(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cases {
		if cases[i].Title == title {
			return &cases[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrCaseNotFound, title)
}

// AddCase creates a case in the configured section.
func (c *Client) AddCase(ctx context.Context, tc Case) (*Case, error) {
	if !c.Enabled() {
		return nil, restclient.ErrNotConfigured
	}
	if c.cfg.SectionID <= 0 {
		return nil, fmt.Errorf("testrail section_id is required to add cases")
	}
	var out Case
	if err := c.rest.Do(ctx, http.MethodPost, apiPath(fmt.Sprintf("add_case/%d", c.cfg.SectionID), nil), tc, &out); err != nil {
		return nil, fmt.Errorf("failed to add case %q: %w", tc.Title, err)
	}
	return &out, nil
}

// UpdateCase replaces an existing case's fields.
func (c *Client) UpdateCase(ctx context.Context, id int, tc Case) (*Case, error) {
	if !c.Enabled() {
		return nil, restclient.ErrNotConfigured
	}
	tc.ID = 0
	var out Case
	if err := c.rest.Do(ctx, http.MethodPost, apiPath(fmt.Sprintf("update_case/%d", id), nil), tc, &out); err != nil {
		return nil, fmt.Errorf("failed to update case %d: %w", id, err)
	}
	return &out, nil
}

// UpsertCase updates the case with the same title, or adds it.
func (c *Client) UpsertCase(ctx context.Context, tc Case) (*Case, error) {
	existing, err := c.FindCaseByTitle(ctx, tc.Title)
	switch {
	case err == nil:
		return c.UpdateCase(ctx, existing.ID, tc)
	case errors.Is(err, ErrCaseNotFound):
		return c.AddCase(ctx, tc)
	default:
		return nil, err
	}
}

// UpsertCases upserts many cases against one listing of the section, with
// at most cfg.Concurrency requests in flight. The returned cases carry
// their TestRail ids in input order.
func (c *Client) UpsertCases(ctx context.Context, cases []models.TestCase, refs string) ([]models.TestCase, error) {
	existing, err := c.ListCases(ctx)
	if err != nil {
		return nil, err
	}
	byTitle := make(map[string]int, len(existing))
	for _, e := range existing {
		byTitle[e.Title] = e.ID
	}

	out := make([]models.TestCase, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	limit := c.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, tc := range cases {
		wire := ToCase(tc, refs)
		id, found := byTitle[tc.Title]
		g.Go(func() error {
			var saved *Case
			var err error
			if found {
				saved, err = c.UpdateCase(gctx, id, wire)
			} else {
				saved, err = c.AddCase(gctx, wire)
			}
			if err != nil {
				return err
			}
			out[i] = tc
			out[i].ID = saved.ID
			if out[i].ID == 0 {
				out[i].ID = id
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddRun creates a run limited to caseIDs.
func (c *Client) AddRun(ctx context.Context, name string, caseIDs []int) (*Run, error) {
	if !c.Enabled() {
		return nil, restclient.ErrNotConfigured
	}
	body := map[string]interface{}{
		"name":        name,
		"include_all": false,
		"case_ids":    caseIDs,
	}
	if c.cfg.SuiteID > 0 {
		body["suite_id"] = c.cfg.SuiteID
	}
	var run Run
	if err := c.rest.Do(ctx, http.MethodPost, apiPath(fmt.Sprintf("add_run/%d", c.cfg.ProjectID), nil), body, &run); err != nil {
		return nil, fmt.Errorf("failed to add run: %w", err)
	}
	return &run, nil
}

// AddResults posts per-case results to a run.
func (c *Client) AddResults(ctx context.Context, runID int, results []Result) error {
	if !c.Enabled() {
		return restclient.ErrNotConfigured
	}
	body := map[string]interface{}{"results": results}
	if err := c.rest.Do(ctx, http.MethodPost, apiPath(fmt.Sprintf("add_results_for_cases/%d", runID), nil), body, nil); err != nil {
		return fmt.Errorf("failed to add results to run %d: %w", runID, err)
	}
	return nil
}

// Ping checks the credentials against the configured project.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return restclient.ErrNotConfigured
	}
	return c.rest.Do(ctx, http.MethodGet, apiPath(fmt.Sprintf("get_project/%d", c.cfg.ProjectID), nil), nil, nil)
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

// ToCase converts a generated test case to the wire shape.
func ToCase(tc models.TestCase, refs string) Case {
	steps := make([]Step, 0, len(tc.Steps))
	for _, s := range tc.Steps {
		steps = append(steps, Step{Content: s.Content, Expected: s.Expected})
	}
	return Case{
		Title:          tc.Title,
		PriorityID:     PriorityID(tc.Priority),
		TypeID:         TypeID(tc.Type),
		Refs:           refs,
		Preconditions:  tc.Preconditions,
		StepsSeparated: steps,
	}
}

// PriorityID maps a priority label onto TestRail's default priorities.
func PriorityID(label string) int {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "critical", "highest":
		return 4
	case "high":
		return 3
	case "low", "lowest":
		return 1
	default:
		return 2
	}
}

// TypeID maps a case type label onto TestRail's default case types.
func TypeID(label string) int {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "acceptance":
		return 1
	case "accessibility":
		return 2
	case "automated":
		return 3
	case "regression":
		return 9
	case "security":
		return 10
	case "smoke", "smoke & sanity":
		return 11
	case "usability":
		return 12
	default:
		return 6 // Functional
	}
}

// OutcomeStatus maps a healing outcome status onto a TestRail status id.
func OutcomeStatus(status string) int {
	switch status {
	case models.OutcomePassed:
		return StatusPassed
	case models.OutcomeCannotHeal:
		return StatusRetest
	default:
		return StatusFailed
	}
}
