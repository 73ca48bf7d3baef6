package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"

	"github.com/yourorg/release-relay/internal/config"
)

type testConfig struct {
	file   config.File
	github config.GitHub
	dest   config.Destination
	loop   config.Loop
}

func run(t *testing.T, args ...string) (*testConfig, error) {
	t.Helper()
	var c testConfig
	var flags []cli.Flag
	flags = append(flags, c.file.Flags()...)
	flags = append(flags, c.github.Flags()...)
	flags = append(flags, c.dest.Flags()...)
	flags = append(flags, c.loop.Flags()...)

	cmd := &cli.Command{
		Name:   "relay",
		Flags:  flags,
		Before: c.file.Before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return nil
		},
	}
	err := cmd.Run(context.Background(), append([]string{"relay"}, args...))
	return &c, err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	gt.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestApplyFile_YAML(t *testing.T) {
	path := writeFile(t, "relay.yaml", `
repo-owner: acme
repo-name: widget
interval: 5m
max-per-cycle: 3
telegram-admin-ids: [1, 2]
`)
	c, err := run(t, "--config", path)
	gt.NoError(t, err)
	gt.Equal(t, c.github.Owner, "acme")
	gt.Equal(t, c.github.Repo, "widget")
	gt.Equal(t, c.loop.Interval, 5*time.Minute)
	gt.Equal(t, c.loop.MaxPerCycle, 3)

	ids, err := c.dest.AdminIDs()
	gt.NoError(t, err)
	gt.A(t, ids).Length(2)
	gt.Equal(t, ids[0], int64(1))
	gt.Equal(t, ids[1], int64(2))
}

func TestApplyFile_TOML(t *testing.T) {
	path := writeFile(t, "relay.toml", `
repo-owner = "acme"
destination = "slack"
page-size = 50
`)
	c, err := run(t, "--config", path)
	gt.NoError(t, err)
	gt.Equal(t, c.github.Owner, "acme")
	gt.Equal(t, c.dest.Kind, config.DestSlack)
	gt.Equal(t, c.github.PageSize, 50)
}

func TestApplyFile_Precedence(t *testing.T) {
	path := writeFile(t, "relay.yaml", "repo-owner: file-owner\nrepo-name: file-repo\n")
	t.Setenv("RELAY_REPO_NAME", "env-repo")

	c, err := run(t, "--config", path, "--repo-owner", "flag-owner")
	gt.NoError(t, err)
	gt.Equal(t, c.github.Owner, "flag-owner")
	gt.Equal(t, c.github.Repo, "env-repo")
}

func TestApplyFile_Errors(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		path := writeFile(t, "relay.yaml", "repo-owner: acme\nbogus: 1\n")
		_, err := run(t, "--config", path)
		gt.Error(t, err)
	})

	t.Run("nested table", func(t *testing.T) {
		path := writeFile(t, "relay.yaml", "repo-owner:\n  name: acme\n")
		_, err := run(t, "--config", path)
		gt.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, "relay.ini", "repo-owner=acme\n")
		_, err := run(t, "--config", path)
		gt.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
		gt.Error(t, err)
	})
}

func TestLoadFile_EmptyYAML(t *testing.T) {
	values, err := config.LoadFile(writeFile(t, "empty.yml", ""))
	gt.NoError(t, err)
	gt.Equal(t, len(values), 0)
}

func TestDestination_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		dest    config.Destination
		wantErr bool
	}{
		{name: "webhook", dest: config.Destination{Kind: config.DestDiscordWebhook, DiscordWebhook: "https://discord.test/api/webhooks/1/x"}},
		{name: "webhook missing url", dest: config.Destination{Kind: config.DestDiscordWebhook}, wantErr: true},
		{name: "bot", dest: config.Destination{Kind: config.DestDiscordBot, DiscordBotToken: "t", DiscordChannelID: "1"}},
		{name: "bot missing channel", dest: config.Destination{Kind: config.DestDiscordBot, DiscordBotToken: "t"}, wantErr: true},
		{name: "telegram", dest: config.Destination{Kind: config.DestTelegram, TelegramToken: "t", TelegramChatID: -100, TelegramAdminIDs: "1, 2"}},
		{name: "telegram bad admin", dest: config.Destination{Kind: config.DestTelegram, TelegramToken: "t", TelegramChatID: 1, TelegramAdminIDs: "1,x"}, wantErr: true},
		{name: "slack", dest: config.Destination{Kind: config.DestSlack, SlackToken: "xoxb", SlackChannel: "C1"}},
		{name: "unknown kind", dest: config.Destination{Kind: "email"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.dest.Validate()
			if tc.wantErr {
				gt.Error(t, err)
			} else {
				gt.NoError(t, err)
			}
		})
	}
}

func TestGitHub_Validate(t *testing.T) {
	ok := config.GitHub{Owner: "acme", Repo: "widget", Source: config.SourceAPI, PageSize: 10}
	gt.NoError(t, ok.Validate())
	gt.Equal(t, ok.FullName(), "acme/widget")

	noRepo := ok
	noRepo.Repo = ""
	gt.Error(t, noRepo.Validate())

	badSource := ok
	badSource.Source = "graphql"
	gt.Error(t, badSource.Validate())

	bigPage := ok
	bigPage.PageSize = 101
	gt.Error(t, bigPage.Validate())
}

func TestLoop_Validate(t *testing.T) {
	ok := config.Loop{Interval: time.Minute, LedgerBackend: config.LedgerSQLite}
	gt.NoError(t, ok.Validate())

	fast := ok
	fast.Interval = 10 * time.Millisecond
	gt.Error(t, fast.Validate())

	badBackend := ok
	badBackend.LedgerBackend = "redis"
	gt.Error(t, badBackend.Validate())
}

func TestRender_Validate(t *testing.T) {
	ok := config.Render{Style: "rich", AnnounceProject: "acme/widget", AnnounceURL: "https://acme.dev/{major}-{minor}"}
	gt.NoError(t, ok.Validate())

	half := ok
	half.AnnounceURL = ""
	gt.Error(t, half.Validate())

	badStyle := ok
	badStyle.Style = "fancy"
	gt.Error(t, badStyle.Validate())
}
