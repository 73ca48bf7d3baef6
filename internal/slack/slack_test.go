package slack_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	slackapi "github.com/slack-go/slack"

	"github.com/yourorg/release-relay/internal/model"
	"github.com/yourorg/release-relay/internal/slack"
)

var payload = model.Payload{
	Content: "<!subteam^S1> v1.0.0",
	Embeds: []model.Embed{{
		Title:       "📦 v1.0.0",
		URL:         "https://github.com/acme/widget/releases/tag/v1.0.0",
		Description: "**ℹ️ Note** see [#1](https://github.com/acme/widget/pull/1)",
		Color:       0x0072f7,
		Footer:      &model.EmbedFooter{Text: "Released by @octocat", IconURL: "https://avatars.example.com/u/1"},
	}},
	Components: []model.Component{{
		Type: model.ComponentActionRow,
		Components: []model.Component{{
			Type: model.ComponentButton, Style: model.ButtonStyleLink,
			Label: "View on GitHub", URL: "https://github.com/acme/widget/releases/tag/v1.0.0",
		}},
	}},
}

func TestMrkdwn(t *testing.T) {
	gt.Equal(t, slack.Mrkdwn("**bold** & [x](https://a.example/b) <tag>"),
		"*bold* &amp; <https://a.example/b|x> &lt;tag&gt;")
	gt.Equal(t, slack.Mrkdwn("**[View](https://a.example)**"), "*<https://a.example|View>*")
}

func TestAttachment(t *testing.T) {
	att := slack.Attachment(payload)
	gt.Value(t, att).NotNil()
	gt.Equal(t, att.Color, "#0072f7")
	gt.Equal(t, att.TitleLink, "https://github.com/acme/widget/releases/tag/v1.0.0")
	gt.Equal(t, att.Text, "*ℹ️ Note* see <https://github.com/acme/widget/pull/1|#1>")
	gt.Equal(t, att.Footer, "Released by @octocat")
	gt.A(t, att.Actions).Length(1)
	gt.Equal(t, att.Actions[0].URL, "https://github.com/acme/widget/releases/tag/v1.0.0")

	gt.Value(t, slack.Attachment(model.Payload{Content: "x"})).Nil()
}

func TestClient_CreateAndUpdate(t *testing.T) {
	forms := map[string]url.Values{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		method := strings.TrimPrefix(r.URL.Path, "/api/")
		forms[method] = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "chat.postMessage":
			fmt.Fprint(w, `{"ok":true,"channel":"C1","ts":"1700000000.000100"}`)
		case "chat.update":
			fmt.Fprint(w, `{"ok":true,"channel":"C1","ts":"1700000000.000100","text":"x"}`)
		default:
			fmt.Fprint(w, `{"ok":false,"error":"unknown_method"}`)
		}
	}))
	defer srv.Close()

	client, err := slack.New("xoxb-test", "C1",
		slack.WithAPIURL(srv.URL+"/api/"),
		slack.WithHTTPClient(srv.Client()),
	)
	gt.NoError(t, err)

	ts, err := client.Create(context.Background(), payload)
	gt.NoError(t, err)
	gt.Equal(t, ts, "1700000000.000100")

	post := forms["chat.postMessage"]
	gt.Equal(t, post.Get("channel"), "C1")
	gt.Equal(t, post.Get("text"), "<!subteam^S1> v1.0.0")

	var atts []slackapi.Attachment
	gt.NoError(t, json.Unmarshal([]byte(post.Get("attachments")), &atts))
	gt.A(t, atts).Length(1)
	gt.Equal(t, atts[0].Title, "📦 v1.0.0")

	ts, err = client.Update(context.Background(), "1700000000.000100", payload)
	gt.NoError(t, err)
	gt.Equal(t, ts, "1700000000.000100")
	gt.Equal(t, forms["chat.update"].Get("ts"), "1700000000.000100")
}

func TestClient_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":false,"error":"channel_not_found"}`)
	}))
	defer srv.Close()

	client, err := slack.New("xoxb-test", "C404", slack.WithAPIURL(srv.URL+"/"), slack.WithHTTPClient(srv.Client()))
	gt.NoError(t, err)

	_, err = client.Create(context.Background(), payload)
	gt.Error(t, err)
	gt.String(t, err.Error()).Contains("channel_not_found")
}

func TestNew_Validation(t *testing.T) {
	_, err := slack.New("", "C1")
	gt.Error(t, err)
}
