package render

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	calloutRe = regexp.MustCompile(`\[!([A-Za-z]+)\]`)
	issueRe   = regexp.MustCompile(`(^|[^\w\[/&#])#(\d+)\b`)
	mentionRe = regexp.MustCompile(`(^|[^\w\[/.@])@([A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)`)
	commitRe  = regexp.MustCompile(`(^|[^\w/\[])([a-f0-9]{40})\b`)
	newlineRe = regexp.MustCompile(`(\r\n|\r|\n)+`)
)

var calloutEmoji = map[string]string{
	"NOTE":      "ℹ️",
	"TIP":       "💡",
	"IMPORTANT": "❗",
	"WARNING":   "⚠️",
	"CAUTION":   "🛑",
}

// rewriteMarkdown applies the release-body rewrites in a fixed order.
// Later rules must not match text produced by earlier ones: every rule refuses
// to match right after "[" or "/", which is where earlier rules put their output.
func rewriteMarkdown(body, repoURL, creditsMarker string) string {
	md := rewriteCallouts(body)

	// PR number: #123
	md = issueRe.ReplaceAllString(md, fmt.Sprintf("${1}[#${2}](%s/pull/${2})", repoURL))

	// Username: @user, credits section only
	if start, end, ok := creditsSpan(md, creditsMarker); ok {
		md = md[:start] + mentionRe.ReplaceAllString(md[start:end], "${1}[@${2}](https://github.com/${2})") + md[end:]
	}

	// Commit hash
	md = commitRe.ReplaceAllStringFunc(md, func(m string) string {
		sub := commitRe.FindStringSubmatch(m)
		return fmt.Sprintf("%s[%s](%s/commit/%s)", sub[1], sub[2][:7], repoURL, sub[2])
	})

	md = newlineRe.ReplaceAllString(md, "\n")
	return strings.TrimSpace(md)
}

func rewriteCallouts(s string) string {
	return calloutRe.ReplaceAllStringFunc(s, func(m string) string {
		kind := strings.ToUpper(calloutRe.FindStringSubmatch(m)[1])
		label := kind[:1] + strings.ToLower(kind[1:])
		if emoji, ok := calloutEmoji[kind]; ok {
			return "**" + emoji + " " + label + "**"
		}
		return "**" + label + "**"
	})
}

// creditsSpan returns the text between the first credits marker and the next
// one, or the end of s
func creditsSpan(s, marker string) (start, end int, ok bool) {
	if marker == "" {
		return 0, 0, false
	}
	idx := strings.Index(s, marker)
	if idx < 0 {
		return 0, 0, false
	}
	start = idx + len(marker)
	end = len(s)
	if next := strings.Index(s[start:], marker); next >= 0 {
		end = start + next
	}
	return start, end, true
}

// countContributors counts distinct @handles in the credits section
func countContributors(body, creditsMarker string) int {
	start, end, ok := creditsSpan(body, creditsMarker)
	if !ok {
		return 0
	}
	seen := make(map[string]struct{})
	for _, m := range mentionRe.FindAllStringSubmatch(body[start:end], -1) {
		seen[strings.ToLower(m[2])] = struct{}{}
	}
	return len(seen)
}
