// Package registry lists published image tags on Docker Hub.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"resty.dev/v3"

	oerrors "github.com/meteorcrawler/meteorcrawler/internal/errors"
)

// DefaultBaseURL is the Docker Hub API endpoint.
const DefaultBaseURL = "https://hub.docker.com"

const (
	pageSize = 100
	maxPages = 1000
)

// Tag is one published image tag.
type Tag struct {
	Name        string `json:"name"`
	LastUpdated string `json:"last_updated"`
}

type tagPage struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []Tag  `json:"results"`
}

// Client lists repository tags of one Docker Hub account.
type Client struct {
	http  *resty.Client
	owner string
	log   *log.Logger
}

// New creates a client for owner's repositories.
func New(baseURL, owner string, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	return &Client{http: c, owner: owner, log: logger}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// Tags returns every tag of repo in the order the registry lists them, most
// recently updated first. A repository that does not exist yet has no tags.
func (c *Client) Tags(ctx context.Context, repo string) ([]Tag, error) {
	c.log.Debug("fetching tags", "repository", c.owner+"/"+repo)

	var tags []Tag
	for page := 1; page <= maxPages; page++ {
		var body tagPage
		res, err := c.http.R().
			SetContext(ctx).
			SetPathParams(map[string]string{"owner": c.owner, "repo": repo}).
			SetQueryParams(map[string]string{
				"page":      strconv.Itoa(page),
				"page_size": strconv.Itoa(pageSize),
			}).
			SetResult(&body).
			Get("/v2/repositories/{owner}/{repo}/tags")
		if err != nil {
			return nil, c.fetchError(repo, err)
		}
		if res.StatusCode() == http.StatusNotFound && page == 1 {
			c.log.Debug("repository not found, treating as empty", "repository", c.owner+"/"+repo)
			return nil, nil
		}
		if res.IsError() {
			return nil, c.fetchError(repo, fmt.Errorf("unexpected status %d", res.StatusCode()))
		}

		tags = append(tags, body.Results...)
		if body.Next == "" || len(body.Results) == 0 {
			break
		}
	}

	c.log.Debug("tags fetched", "repository", c.owner+"/"+repo, "count", len(tags))
	return tags, nil
}

// TagNames returns only the names of every tag of repo.
func (c *Client) TagNames(ctx context.Context, repo string) ([]string, error) {
	tags, err := c.Tags(ctx, repo)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names, nil
}

func (c *Client) fetchError(repo string, err error) error {
	return oerrors.NewConnectivityError(
		"listing Docker Hub tags failed",
		map[string]string{"Repository": c.owner + "/" + repo},
		err,
	)
}
