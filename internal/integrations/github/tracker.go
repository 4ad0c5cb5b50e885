// Package github is the concrete external issue tracker adapter (§6E):
// the only package in this module that imports github.com/google/go-github.
// It implements both action.IssueTracker (issue-action handler) and
// completion.Probe (externalState completion), so neither the Runner nor
// the completion package ever sees a go-github type, per Design Notes'
// "do not leak backend SDK types into the Runner".
package github

import (
	"context"
	"fmt"

	"github.com/google/go-github/v70/github"
)

// Tracker wraps a go-github client scoped to one owner/repo, as declared in
// an agent's runner.integrations.issueTracker config.
type Tracker struct {
	client *github.Client
	owner  string
	repo   string
}

// New constructs a Tracker. token may be empty for unauthenticated access
// (rate-limited, read-mostly use); owner/repo come from
// agentdef.IssueTrackerConfig.
func New(token, owner, repo string) *Tracker {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &Tracker{client: client, owner: owner, repo: repo}
}

// Comment implements action.IssueTracker.
func (t *Tracker) Comment(ctx context.Context, issue int, body string) error {
	_, _, err := t.client.Issues.CreateComment(ctx, t.owner, t.repo, issue, &github.IssueComment{Body: &body})
	if err != nil {
		return fmt.Errorf("github: comment on #%d: %w", issue, err)
	}
	return nil
}

// AddLabel implements action.IssueTracker.
func (t *Tracker) AddLabel(ctx context.Context, issue int, label string) error {
	_, _, err := t.client.Issues.AddLabelsToIssue(ctx, t.owner, t.repo, issue, []string{label})
	if err != nil {
		return fmt.Errorf("github: add label %q to #%d: %w", label, issue, err)
	}
	return nil
}

// Close implements action.IssueTracker.
func (t *Tracker) Close(ctx context.Context, issue int) error {
	state := "closed"
	_, _, err := t.client.Issues.Edit(ctx, t.owner, t.repo, issue, &github.IssueRequest{State: &state})
	if err != nil {
		return fmt.Errorf("github: close #%d: %w", issue, err)
	}
	return nil
}

// Probe implements completion.Probe for resourceType "issue": it returns
// the issue's state ("open"/"closed") for the externalState completion
// handler to compare against its declared targetState.
func (t *Tracker) Probe(ctx context.Context, resourceType, id string) (string, error) {
	if resourceType != "issue" {
		return "", fmt.Errorf("github: probe does not support resourceType %q", resourceType)
	}
	var number int
	if _, err := fmt.Sscanf(id, "%d", &number); err != nil {
		return "", fmt.Errorf("github: probe id %q is not a valid issue number: %w", id, err)
	}
	issue, _, err := t.client.Issues.Get(ctx, t.owner, t.repo, number)
	if err != nil {
		return "", fmt.Errorf("github: get issue #%d: %w", number, err)
	}
	return issue.GetState(), nil
}
