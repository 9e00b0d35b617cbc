package diag

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v2"
)

// Verdict tells the state machine what a recognized line means.
type Verdict string

const (
	// VerdictSkip marks benign preamble chatter: banners, file-load echoes and
	// blank or dot-fill progress lines. It only counts in the preamble.
	VerdictSkip Verdict = "skip"
	// VerdictDocument marks normal document processing. In the preamble it
	// moves the machine into the document phase; in the document phase it is
	// the only verdict that keeps the machine healthy.
	VerdictDocument Verdict = "document"
)

func (v Verdict) valid() bool {
	switch v {
	case VerdictSkip, VerdictDocument:
		return true
	default:
		return false
	}
}

// Rule pairs a line pattern with its verdict.
type Rule struct {
	Pattern *regexp.Regexp
	Name    string
	Verdict Verdict
}

// Rules is an ordered whitelist; the first matching rule decides.
type Rules []Rule

// DefaultRules recognize the routine output of latex running a standalone
// tikz document in nonstop mode.
func DefaultRules() Rules {
	return Rules{
		{Name: "tex-banner", Verdict: VerdictSkip, Pattern: regexp.MustCompile(`^This is (?:e-|pdf|Xe|Lua|e-up)?(?:La)?TeX`)},
		{Name: "format-banner", Verdict: VerdictSkip, Pattern: regexp.MustCompile(`^(?:\*\*|entering extended mode|restricted \\write18|\\write18 enabled|LaTeX2e <|L3 programming layer|Document Class:|Babel <)`)},
		{Name: "package-info", Verdict: VerdictSkip, Pattern: regexp.MustCompile(`^(?:Package|File|Language|Dictionary): `)},
		// Font definitions and the aux file are read once the body starts.
		{Name: "font-load", Verdict: VerdictDocument, Pattern: regexp.MustCompile(`^(?:[\s()]*[^\s()]+\.fd)+[\s()]*$`)},
		{Name: "aux-load", Verdict: VerdictDocument, Pattern: regexp.MustCompile(`^[\s()]*[^\s()]+\.aux[\s()]*$`)},
		{Name: "file-load", Verdict: VerdictSkip, Pattern: regexp.MustCompile(`^(?:[\s()]*[^\s()]+\.(?:sty|cls|tex|def|cfg|clo|ldf|dict))+[\s()]*$`)},
		{Name: "filler", Verdict: VerdictSkip, Pattern: regexp.MustCompile(`^[\s.()]*$`)},
		{Name: "no-aux", Verdict: VerdictDocument, Pattern: regexp.MustCompile(`^No file \S+\.aux\.`)},
		{Name: "shipout-init", Verdict: VerdictDocument, Pattern: regexp.MustCompile(`^ABD: EveryShipout`)},
		{Name: "page-shipout", Verdict: VerdictDocument, Pattern: regexp.MustCompile(`^\[\d+`)},
		{Name: "output-written", Verdict: VerdictDocument, Pattern: regexp.MustCompile(`^(?:Output|Transcript) written on `)},
		{Name: "no-pages", Verdict: VerdictDocument, Pattern: regexp.MustCompile(`^No pages of output\.`)},
	}
}

// match returns the verdict of the first rule matching line.
func (rs Rules) match(line string) (Verdict, bool) {
	for _, rule := range rs {
		if rule.Pattern != nil && rule.Pattern.MatchString(line) {
			return rule.Verdict, true
		}
	}
	return "", false
}

type ruleEntry struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Verdict string `yaml:"verdict"`
}

// LoadRules parses a YAML list of {name, pattern, verdict} entries.
func LoadRules(r io.Reader) (Rules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var entries []ruleEntry
	if err := yaml.UnmarshalStrict(data, &entries); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("rules file defines no rules")
	}

	rules := make(Rules, 0, len(entries))
	for i, entry := range entries {
		verdict := Verdict(strings.ToLower(strings.TrimSpace(entry.Verdict)))
		if !verdict.valid() {
			return nil, fmt.Errorf("rule %d (%s): unknown verdict %q", i, entry.Name, entry.Verdict)
		}
		pattern, err := regexp.Compile(entry.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, entry.Name, err)
		}
		rules = append(rules, Rule{Name: entry.Name, Pattern: pattern, Verdict: verdict})
	}
	return rules, nil
}

// LoadRulesFile reads rules from a YAML file on disk.
func LoadRulesFile(path string) (Rules, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("open rules: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}
