package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var exportLine = regexp.MustCompile(`^\s*export\s+([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

// ReadEnvFile parses the `export KEY=value` lines of a shell rc file.
// A missing file yields an empty map.
func ReadEnvFile(path string) (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		m := exportLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		values[m[1]] = unquote(strings.TrimSpace(m[2]))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse env file %s: %w", path, err)
	}

	return values, nil
}

// UpsertEnvFile writes `export KEY="value"` lines for every entry. Existing
// lines for a key are replaced in place and later duplicates removed; new keys
// are appended in sorted order. It reports whether the file changed.
func UpsertEnvFile(path string, values map[string]string) (bool, error) {
	original, err := os.ReadFile(path)
	mode := os.FileMode(0600)
	switch {
	case err == nil:
		if info, statErr := os.Stat(path); statErr == nil {
			mode = info.Mode().Perm()
		}
	case os.IsNotExist(err):
		original = nil
	default:
		return false, fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	written := make(map[string]bool, len(values))
	var lines []string

	if len(original) > 0 {
		for _, line := range strings.Split(strings.TrimSuffix(string(original), "\n"), "\n") {
			m := exportLine.FindStringSubmatch(line)
			if m == nil {
				lines = append(lines, line)
				continue
			}
			value, managed := values[m[1]]
			if !managed {
				lines = append(lines, line)
				continue
			}
			if written[m[1]] {
				continue
			}
			lines = append(lines, FormatExport(m[1], value))
			written[m[1]] = true
		}
	}

	var missing []string
	for key := range values {
		if !written[key] {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	for _, key := range missing {
		lines = append(lines, FormatExport(key, values[key]))
	}

	updated := strings.Join(lines, "\n") + "\n"
	if updated == string(original) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(updated), mode); err != nil {
		return false, fmt.Errorf("failed to write env file %s: %w", path, err)
	}

	return true, nil
}

// FormatExport renders a shell export line with the value double quoted and
// backslash, double quote, dollar and backtick escaped.
func FormatExport(key, value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`").Replace(value)
	return fmt.Sprintf(`export %s="%s"`, key, escaped)
}

func unquote(v string) string {
	if len(v) >= 2 {
		switch {
		case v[0] == '"' && v[len(v)-1] == '"':
			inner := v[1 : len(v)-1]
			return strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\$`, "$", "\\`", "`").Replace(inner)
		case v[0] == '\'' && v[len(v)-1] == '\'':
			return v[1 : len(v)-1]
		}
	}
	return v
}
