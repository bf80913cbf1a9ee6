package intercept

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// tableFile is the YAML layout of a registration table.
type tableFile struct {
	Operations map[string]Rule `yaml:"operations"`
}

// UnmarshalYAML decodes a rule whose durations are written as strings such
// as "5s", "1h30m" or "1d".
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		TTL           string `yaml:"ttl"`
		Timeout       string `yaml:"timeout"`
		MaxConcurrent int    `yaml:"max_concurrent"`
		MaxWait       string `yaml:"max_wait"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}

	ttl, err := parseDuration("ttl", aux.TTL)
	if err != nil {
		return err
	}
	timeout, err := parseDuration("timeout", aux.Timeout)
	if err != nil {
		return err
	}

	maxWait, err := parseDuration("max_wait", aux.MaxWait)
	if err != nil {
		return err
	}

	*r = Rule{TTL: ttl, Timeout: timeout, MaxConcurrent: aux.MaxConcurrent, MaxWait: maxWait}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

// LoadTable reads a YAML registration table. Environment references such
// as ${QUERY_TTL} are expanded before decoding.
// Operations are registered in sorted order, so the first reported error is
// deterministic.
func LoadTable(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("intercept: read table: %w", err)
	}
	doc, err := expandEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var file tableFile
	dec := yaml.NewDecoder(strings.NewReader(doc))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("intercept: decode table: %w", err)
	}

	ops := make([]string, 0, len(file.Operations))
	for op := range file.Operations {
		ops = append(ops, op)
	}
	slices.Sort(ops)

	t := NewTable()
	for _, op := range ops {
		if err := t.Register(op, file.Operations[op]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// LoadTableFile reads a YAML registration table from path.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("intercept: open table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}
