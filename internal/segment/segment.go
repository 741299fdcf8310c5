// Package segment buckets free-text department and ad category labels into clinical segments.
package segment

import (
	"fmt"
	"regexp"
	"strings"
)

// Segment is a clinical department grouping.
type Segment string

const (
	None             Segment = ""
	General          Segment = "general"
	Fever            Segment = "fever"
	EndoscopyStomach Segment = "endoscopy-stomach"
	EndoscopyColon   Segment = "endoscopy-colon"
)

// Group is the dataset bucket a segment is reported under.
type Group string

const (
	GroupAll       Group = "all"
	GroupGeneral   Group = "general"
	GroupFever     Group = "fever"
	GroupEndoscopy Group = "endoscopy"
)

// Groups lists dataset groups in report order.
var Groups = []Group{GroupAll, GroupGeneral, GroupFever, GroupEndoscopy}

// Group maps a segment to its dataset group; stomach and colon share endoscopy.
// None has no group of its own and is only counted under GroupAll.
func (s Segment) Group() (Group, bool) {
	switch s {
	case General:
		return GroupGeneral, true
	case Fever:
		return GroupFever, true
	case EndoscopyStomach, EndoscopyColon:
		return GroupEndoscopy, true
	default:
		return "", false
	}
}

func (s Segment) String() string {
	if s == None {
		return "none"
	}
	return string(s)
}

// Parse accepts a segment name as written in configuration.
func Parse(s string) (Segment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "general":
		return General, nil
	case "fever":
		return Fever, nil
	case "endoscopy-stomach", "stomach":
		return EndoscopyStomach, nil
	case "endoscopy-colon", "colon":
		return EndoscopyColon, nil
	case "none", "":
		return None, nil
	default:
		return None, fmt.Errorf("unknown segment %q", s)
	}
}

var (
	feverPattern   = regexp.MustCompile(`発熱|風邪|かぜ|カゼ|感冒|コロナ|インフル|(?i:fever)`)
	generalPattern = regexp.MustCompile(`内科|外科|一般|健診|(?i:general)`)
	stomachPattern = regexp.MustCompile(`胃|上部|内視鏡|カメラ|(?i:gastro|endoscop)`)
	colonPattern   = regexp.MustCompile(`大腸|下部|ポリープ|(?i:colon)`)
)

// Classify applies the priority rules: fever, then general medicine, then
// endoscopy sub-type. A label matching both endoscopy patterns goes to colon.
func Classify(label string) Segment {
	if label == "" {
		return None
	}
	switch {
	case feverPattern.MatchString(label):
		return Fever
	case generalPattern.MatchString(label):
		return General
	}
	colon := colonPattern.MatchString(label)
	switch {
	case colon:
		return EndoscopyColon
	case stomachPattern.MatchString(label):
		return EndoscopyStomach
	}
	return None
}

// Classifier applies exact-label overrides before the priority rules.
// Labels are compared trimmed and case-folded; configuration loaders lower-case map keys.
type Classifier struct {
	Overrides map[string]Segment
}

// NewClassifier parses label → segment overrides from configuration.
func NewClassifier(overrides map[string]string) (*Classifier, error) {
	c := &Classifier{Overrides: make(map[string]Segment, len(overrides))}
	for label, name := range overrides {
		s, err := Parse(name)
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", label, err)
		}
		c.Overrides[overrideKey(label)] = s
	}
	return c, nil
}

// Classify returns the override for label if one exists, else Classify(label).
func (c *Classifier) Classify(label string) Segment {
	if c != nil {
		if s, ok := c.Overrides[overrideKey(label)]; ok {
			return s
		}
	}
	return Classify(label)
}

func overrideKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
