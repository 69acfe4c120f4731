package target

import (
	"os"
	"regexp"
	"strings"

	"github.com/harrison/selfheal/internal/config"
	"github.com/harrison/selfheal/internal/models"
)

// Credential strategy names, in precedence order.
const (
	SourceConfig = "config"
	SourceStory  = "story-text"
	SourceEnv    = "env"
)

var (
	usernamePattern = regexp.MustCompile(`(?i)\b(?:username|user name|login|user|email)\s*[:=]\s*["'` + "`" + `]?([^\s"'` + "`" + `,;]+)`)
	passwordPattern = regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)\s*[:=]\s*["'` + "`" + `]?([^\s"'` + "`" + `,;]+)`)
)

// CredentialResolver finds login details for the system under test.
type CredentialResolver struct {
	resolver Resolver[models.Credentials]
}

// NewCredentialResolver builds the config, story-text, env chain.
func NewCredentialResolver(cfg config.TargetConfig) *CredentialResolver {
	return &CredentialResolver{resolver: Resolver[models.Credentials]{Strategies: []Strategy[models.Credentials]{
		{Name: SourceConfig, Find: func(Input) (models.Credentials, bool) {
			return models.Credentials{Username: cfg.Username, Password: cfg.Password}, cfg.Username != ""
		}},
		{Name: SourceStory, Find: fromStoryText},
		{Name: SourceEnv, Find: func(Input) (models.Credentials, bool) {
			user := os.Getenv("SUT_USERNAME")
			return models.Credentials{Username: user, Password: os.Getenv("SUT_PASSWORD")}, user != ""
		}},
	}}}
}

// Resolve returns the first credentials found, or empty credentials.
func (c *CredentialResolver) Resolve(in Input) models.Credentials {
	cand, ok := c.resolver.Resolve(in)
	if !ok {
		return models.Credentials{}
	}
	creds := cand.Value
	creds.Source = cand.Source
	return creds
}

func fromStoryText(in Input) (models.Credentials, bool) {
	texts := []string{in.Story.Text()}
	texts = append(texts, in.Story.AcceptanceCriteria...)
	for _, tc := range in.TestCases {
		texts = append(texts, tc.Text())
	}
	text := strings.Join(texts, "\n")

	user := usernamePattern.FindStringSubmatch(text)
	if user == nil {
		return models.Credentials{}, false
	}
	creds := models.Credentials{Username: user[1]}
	if pw := passwordPattern.FindStringSubmatch(text); pw != nil {
		creds.Password = pw[1]
	}
	return creds, true
}
