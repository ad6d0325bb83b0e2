// Package gist publishes session transcripts as GitHub gists.
package gist

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/agentdeck/agentdeck/pkg/log"
	"github.com/agentdeck/agentdeck/pkg/redact"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

// Config holds configuration for a Publisher.
type Config struct {
	// Token is the GitHub token; falls back to AGENTDECK_GITHUB_TOKEN,
	// then GITHUB_TOKEN.
	Token string
	// BaseURL overrides the GitHub API endpoint.
	BaseURL string
	// Public makes created gists public; default is secret.
	Public bool
	// Redactor scrubs the rendered transcript; redact.FromEnv when nil.
	Redactor *redact.Redactor
}

// Publisher creates gists from session transcripts.
type Publisher struct {
	client   *github.Client
	redactor *redact.Redactor
	public   bool
}

// New creates a Publisher.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	token := cfg.Token
	if token == "" {
		token = os.Getenv("AGENTDECK_GITHUB_TOKEN")
	}
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, errors.New("github token required: set AGENTDECK_GITHUB_TOKEN or GITHUB_TOKEN")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		client.BaseURL = base
	}

	redactor := cfg.Redactor
	if redactor == nil {
		redactor = redact.FromEnv()
	}
	return &Publisher{client: client, redactor: redactor, public: cfg.Public}, nil
}

// Publish renders, redacts, and uploads a transcript. It returns the
// gist's HTML URL.
func (p *Publisher) Publish(ctx context.Context, sessionID string, msgs []stream.Message) (string, error) {
	if len(msgs) == 0 {
		return "", errors.New("nothing to share: transcript is empty")
	}
	content := p.redactor.Redact(Render(sessionID, msgs))

	filename := github.GistFilename("session-" + sessionID + ".md")
	gist := &github.Gist{
		Description: github.Ptr("agentdeck session " + sessionID),
		Public:      github.Ptr(p.public),
		Files: map[github.GistFilename]github.GistFile{
			filename: {Content: github.Ptr(content)},
		},
	}
	created, _, err := p.client.Gists.Create(ctx, gist)
	if err != nil {
		return "", fmt.Errorf("create gist: %w", err)
	}
	log.Info("transcript shared", "session", sessionID, "url", created.GetHTMLURL())
	return created.GetHTMLURL(), nil
}
