package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v68/github"
)

// execGithub implements the builtin skill__github tool: a bounded set
// of issue and pull-request operations against the single repository
// named by GitHubToolConfig.Repo, dispatched from a short
// natural-language command rather than structured parameters, the
// same free-text convention content skills use for "arguments".
func (s *Service) execGithub(ctx context.Context, argsText string) (string, bool, error) {
	owner, repo, ok := strings.Cut(s.githubCfg.Repo, "/")
	if !ok {
		return "", false, fmt.Errorf("github: tools.github.repo must be \"owner/name\", got %q", s.githubCfg.Repo)
	}

	cmd := strings.ToLower(strings.TrimSpace(argsText))
	switch {
	case cmd == "" || cmd == "list issues" || cmd == "list open issues":
		return s.githubListIssues(ctx, owner, repo, "open")
	case cmd == "list closed issues":
		return s.githubListIssues(ctx, owner, repo, "closed")
	case cmd == "list pull requests" || cmd == "list open pull requests" || cmd == "list prs":
		return s.githubListPulls(ctx, owner, repo, "open")
	case cmd == "list closed pull requests" || cmd == "list closed prs":
		return s.githubListPulls(ctx, owner, repo, "closed")
	case strings.HasPrefix(cmd, "create issue:"):
		return s.githubCreateIssue(ctx, owner, repo, argsText[strings.Index(argsText, ":")+1:])
	case strings.HasPrefix(cmd, "get issue "):
		return s.githubGetIssue(ctx, owner, repo, strings.TrimSpace(cmd[len("get issue "):]))
	default:
		return fmt.Sprintf("Unrecognized github command %q. Supported: list issues, list closed issues, list pull requests, list closed pull requests, create issue: <title> | <body>, get issue <number>.", argsText), true, nil
	}
}

func (s *Service) githubListIssues(ctx context.Context, owner, repo, state string) (string, bool, error) {
	issues, _, err := s.github.Issues.ListByRepo(ctx, owner, repo, &github.IssueListByRepoOptions{
		State: state,
		ListOptions: github.ListOptions{
			PerPage: 20,
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("github: list issues: %w", err)
	}
	if len(issues) == 0 {
		return fmt.Sprintf("No %s issues in %s/%s.", state, owner, repo), true, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s issues in %s/%s:\n", capitalize(state), owner, repo)
	for _, iss := range issues {
		if iss.IsPullRequest() {
			continue
		}
		fmt.Fprintf(&b, "#%d %s\n", iss.GetNumber(), iss.GetTitle())
	}
	return b.String(), true, nil
}

func (s *Service) githubListPulls(ctx context.Context, owner, repo, state string) (string, bool, error) {
	pulls, _, err := s.github.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: 20},
	})
	if err != nil {
		return "", false, fmt.Errorf("github: list pull requests: %w", err)
	}
	if len(pulls) == 0 {
		return fmt.Sprintf("No %s pull requests in %s/%s.", state, owner, repo), true, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s pull requests in %s/%s:\n", capitalize(state), owner, repo)
	for _, pr := range pulls {
		fmt.Fprintf(&b, "#%d %s\n", pr.GetNumber(), pr.GetTitle())
	}
	return b.String(), true, nil
}

func (s *Service) githubCreateIssue(ctx context.Context, owner, repo, rest string) (string, bool, error) {
	title, body, _ := strings.Cut(rest, "|")
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" {
		return "create issue requires a title: \"create issue: <title> | <body>\"", true, nil
	}
	issue, _, err := s.github.Issues.Create(ctx, owner, repo, &github.IssueRequest{
		Title: &title,
		Body:  &body,
	})
	if err != nil {
		return "", false, fmt.Errorf("github: create issue: %w", err)
	}
	return fmt.Sprintf("Created issue #%d: %s", issue.GetNumber(), issue.GetHTMLURL()), true, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (s *Service) githubGetIssue(ctx context.Context, owner, repo, numberText string) (string, bool, error) {
	number, err := strconv.Atoi(numberText)
	if err != nil {
		return fmt.Sprintf("%q is not a valid issue number", numberText), true, nil
	}
	issue, _, err := s.github.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return "", false, fmt.Errorf("github: get issue: %w", err)
	}
	return fmt.Sprintf("#%d %s (%s)\n%s", issue.GetNumber(), issue.GetTitle(), issue.GetState(), issue.GetBody()), true, nil
}
