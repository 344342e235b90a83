package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// LoadDir walks dir for one level of subdirectories, each expected to
// contain a SKILL.md, and registers a content-based skill per
// subdirectory. Directories without a SKILL.md are skipped.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read skills dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name, "SKILL.md")
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read %s: %w", path, err)
		}

		skill, err := parseSkillMD(string(raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if skill.Name == "" {
			skill.Name = name
		}
		r.RegisterContent(*skill)
	}

	return nil
}

// parseSkillMD parses a SKILL.md document: YAML-like front matter
// delimited by "---" lines, followed by a Markdown body used verbatim
// as the skill's instructions.
func parseSkillMD(raw string) (*Skill, error) {
	fields, body, err := splitFrontMatter(raw)
	if err != nil {
		return nil, err
	}

	s := &Skill{
		Name:                   fields["name"],
		Description:            fields["description"],
		ArgumentHint:           fields["argument-hint"],
		UserInvocable:          parseBool(fields["user-invocable"], true),
		DisableModelInvocation: parseBool(fields["disable-model-invocation"], false),
		SkillContext:           Context(fields["context"]),
		Instructions:           body,
	}
	if s.SkillContext == "" {
		s.SkillContext = ContextFork
	}
	if tools := fields["allowed-tools"]; tools != "" {
		s.AllowedTools = parseList(tools)
	}
	return s, nil
}

// splitFrontMatter separates "---\nkey: value\n---\n" front matter from
// the remaining document body. Missing front matter yields an empty
// field map and the whole document as body.
func splitFrontMatter(raw string) (map[string]string, string, error) {
	if !strings.HasPrefix(raw, "---") {
		return map[string]string{}, raw, nil
	}

	rest := strings.TrimPrefix(raw, "---")
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	closeIdx := strings.Index(rest, "\n---")
	if closeIdx < 0 {
		return nil, "", fmt.Errorf("front matter has no closing ---")
	}

	block := rest[:closeIdx]
	body := strings.TrimLeft(rest[closeIdx+4:], "\r\n")

	fields := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		fields[key] = value
	}

	return fields, body, nil
}

func parseList(value string) []string {
	value = strings.TrimPrefix(value, "[")
	value = strings.TrimSuffix(value, "]")
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, `"'`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(value string, def bool) bool {
	if value == "" {
		return def
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return b
}
