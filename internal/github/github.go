// Package github reads release tags and branch heads from the GitHub API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"resty.dev/v3"

	oerrors "github.com/meteorcrawler/meteorcrawler/internal/errors"
	"github.com/meteorcrawler/meteorcrawler/internal/resolve"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// ReleaseTagPrefix marks Meteor release tags in the meteor/meteor repository.
const ReleaseTagPrefix = "release/METEOR@"

const (
	perPage  = 100
	maxPages = 1000
)

type tag struct {
	Name string `json:"name"`
}

type branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// Client is an authenticated GitHub API client.
type Client struct {
	http *resty.Client
	log  *log.Logger
}

// New creates a client authenticating with token.
func New(baseURL, token string, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetHeader("Accept", "application/vnd.github+json")
	return &Client{http: c, log: logger}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// Tags returns every tag of owner/repo, oldest first. The API lists newest
// first, so the collected pages are reversed.
func (c *Client) Tags(ctx context.Context, owner, repo string) ([]string, error) {
	c.log.Debug("fetching tags", "repository", owner+"/"+repo)

	var names []string
	for page := 1; page <= maxPages; page++ {
		var body []tag
		res, err := c.http.R().
			SetContext(ctx).
			SetPathParams(map[string]string{"owner": owner, "repo": repo}).
			SetQueryParams(map[string]string{
				"page":     strconv.Itoa(page),
				"per_page": strconv.Itoa(perPage),
			}).
			SetResult(&body).
			Get("/repos/{owner}/{repo}/tags")
		if err != nil {
			return nil, fetchError(owner, repo, err)
		}
		if res.IsError() {
			return nil, fetchError(owner, repo, fmt.Errorf("unexpected status %d", res.StatusCode()))
		}
		if len(body) == 0 {
			break
		}
		for _, t := range body {
			names = append(names, t.Name)
		}
	}

	slices.Reverse(names)
	c.log.Debug("tags fetched", "repository", owner+"/"+repo, "count", len(names))
	return names, nil
}

// ReleaseVersions returns the versions of all release tags, oldest first.
func (c *Client) ReleaseVersions(ctx context.Context, owner, repo string) ([]string, error) {
	tags, err := c.Tags(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return ReleaseVersions(tags), nil
}

// ReleaseVersions strips ReleaseTagPrefix from release tags and drops the rest.
func ReleaseVersions(tags []string) []string {
	var out []string
	for _, t := range tags {
		if v, ok := strings.CutPrefix(t, ReleaseTagPrefix); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Branch returns the head of one branch.
func (c *Client) Branch(ctx context.Context, owner, repo, name string) (resolve.Branch, error) {
	var body branch
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": owner, "repo": repo, "branch": name}).
		SetResult(&body).
		Get("/repos/{owner}/{repo}/branches/{branch}")
	if err != nil {
		return resolve.Branch{}, fetchError(owner, repo, err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return resolve.Branch{}, oerrors.Wrap(oerrors.ErrNotFound, "branch "+name)
	}
	if res.IsError() {
		return resolve.Branch{}, fetchError(owner, repo, fmt.Errorf("unexpected status %d", res.StatusCode()))
	}
	return resolve.Branch{Name: body.Name, CommitSHA: body.Commit.SHA}, nil
}

// Branches returns the heads of the named branches in order. Branches that do
// not exist are left out; any other failure aborts with a connectivity error.
func (c *Client) Branches(ctx context.Context, owner, repo string, names []string) ([]resolve.Branch, error) {
	var out []resolve.Branch
	for _, name := range names {
		b, err := c.Branch(ctx, owner, repo, name)
		if errors.Is(err, oerrors.ErrNotFound) {
			c.log.Debug("skipping missing branch", "branch", name)
			continue
		}
		if err != nil {
			return nil, err
		}
		c.log.Debug("branch head", "branch", b.Name, "sha", b.CommitSHA)
		out = append(out, b)
	}
	return out, nil
}

func fetchError(owner, repo string, err error) error {
	return oerrors.NewConnectivityError(
		"listing GitHub data failed",
		map[string]string{"Repository": owner + "/" + repo},
		err,
	)
}
