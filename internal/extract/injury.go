package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/normalize"
)

var severityLabels = newLabelSet(
	[]string{"INJURY SEVERITY", "SEVERITY OF INJURY", "SEVERITY", "INJURY CLASSIFICATION"},
	[]string{"INJ SEV", "INJ. SEV", "SEV", "INJURY CLASS", "INJURY CODE"},
)

var regionLabels = newLabelSet(
	[]string{"INJURY REGION", "BODY REGION", "REGION OF INJURY", "INJURED AREA", "AREA OF BODY", "BODY PART"},
	[]string{"INJ REGION", "INJ AREA", "REGION", "PART OF BODY"},
)

// Severity wording, checked in order so "non-incapacitating" is seen
// before "incapacitating"
var severityPhrases = []struct {
	pattern  *regexp.Regexp
	severity model.Severity
}{
	{regexp.MustCompile(`(?i)^(?:non[\s-]*incapacitating|visible|evident|minor)\b`), model.SeverityVisible},
	{regexp.MustCompile(`(?i)^(?:no\s+injury|not\s+injured|uninjured|none|pdo|property\s+damage)\b`), model.SeverityUninjured},
	{regexp.MustCompile(`(?i)^(?:killed|fatal(?:ity)?|dead|deceased)\b`), model.SeverityKilled},
	{regexp.MustCompile(`(?i)^(?:disabling|incapacitating|serious|severe)\b`), model.SeverityDisabling},
	{regexp.MustCompile(`(?i)^(?:possible|complaint(?:\s+of\s+pain)?|complains?\s+of\s+pain|pain)\b`), model.SeverityPossible},
}

var (
	severityDigitPattern = regexp.MustCompile(`^\(?([1-5])\)?(?:\W|$)`)
	severityKABCOPattern = regexp.MustCompile(`^([KABCOkabco])(?:\W|$)`)
	regionCodePattern    = regexp.MustCompile(`^(\d{1,2})\b`)
)

// KABCO injury scale letters as used on state crash forms
var kabco = map[string]model.Severity{
	"K": model.SeverityKilled,
	"A": model.SeverityDisabling,
	"B": model.SeverityVisible,
	"C": model.SeverityPossible,
	"O": model.SeverityUninjured,
}

// ParseInjurySeverity extracts the injury severity from a numeric code, a
// KABCO letter or the written label. Unrecognized values yield nothing.
func ParseInjurySeverity(lines []normalize.Line) []Candidate[model.Severity] {
	var out []Candidate[model.Severity]
	for _, h := range severityLabels.find(lines) {
		sev, ok := severityValue(h.Value)
		if !ok {
			continue
		}
		out = append(out, Candidate[model.Severity]{Value: sev, Confidence: h.Confidence, Line: h.Line, Offset: h.Offset})
	}
	return out
}

func severityValue(s string) (model.Severity, bool) {
	s = strings.TrimSpace(s)
	if m := severityDigitPattern.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return model.Severity(n), true
	}
	if m := severityKABCOPattern.FindStringSubmatch(s); m != nil {
		return kabco[strings.ToUpper(m[1])], true
	}
	for _, p := range severityPhrases {
		if p.pattern.MatchString(s) {
			return p.severity, true
		}
	}
	return 0, false
}

// regionTerm maps a body-part phrase to its region. Ambiguous everyday
// words ("back", "hand", "head") only count on lines about injuries.
type regionTerm struct {
	pattern     *regexp.Regexp
	region      model.InjuryRegion
	words       int
	needsAnchor bool
}

func term(phrase string, region model.InjuryRegion, needsAnchor bool) regionTerm {
	words := strings.Fields(phrase)
	body := strings.Join(words, `[\s-]+`)
	return regionTerm{
		pattern:     regexp.MustCompile(`(?i)\b` + body + `\b`),
		region:      region,
		words:       len(words),
		needsAnchor: needsAnchor,
	}
}

var regionTerms = []regionTerm{
	term("entire body", model.RegionEntireBody, false),
	term("whole body", model.RegionEntireBody, false),
	term("multiple injuries", model.RegionEntireBody, false),
	term("upper arm", model.RegionShoulderUpperArm, false),
	term("lower arm", model.RegionElbowLowerArmHand, false),
	term("upper leg", model.RegionHipUpperLeg, false),
	term("lower leg", model.RegionKneeLowerLegFoot, false),
	term("lower back", model.RegionBackSpine, false),
	term("upper back", model.RegionBackSpine, false),

	term("skull", model.RegionHead, false),
	term("concussion", model.RegionHead, false),
	term("head", model.RegionHead, true),
	term("forehead", model.RegionFace, false),
	term("face", model.RegionFace, true),
	term("facial", model.RegionFace, false),
	term("nose", model.RegionFace, true),
	term("jaw", model.RegionFace, false),
	term("chin", model.RegionFace, false),
	term("lip", model.RegionFace, false),
	term("teeth", model.RegionFace, false),
	term("eye", model.RegionFace, true),
	term("neck", model.RegionNeck, true),
	term("cervical", model.RegionNeck, false),
	term("chest", model.RegionChest, false),
	term("ribs?", model.RegionChest, false),
	term("sternum", model.RegionChest, false),
	term("back", model.RegionBackSpine, true),
	term("spine", model.RegionBackSpine, false),
	term("spinal", model.RegionBackSpine, false),
	term("lumbar", model.RegionBackSpine, false),
	term("shoulders?", model.RegionShoulderUpperArm, false),
	term("collarbone", model.RegionShoulderUpperArm, false),
	term("clavicle", model.RegionShoulderUpperArm, false),
	term("elbows?", model.RegionElbowLowerArmHand, false),
	term("forearms?", model.RegionElbowLowerArmHand, false),
	term("wrists?", model.RegionElbowLowerArmHand, false),
	term("hands?", model.RegionElbowLowerArmHand, true),
	term("fingers?", model.RegionElbowLowerArmHand, false),
	term("arms?", model.RegionElbowLowerArmHand, true),
	term("abdomen", model.RegionAbdomenPelvis, false),
	term("abdominal", model.RegionAbdomenPelvis, false),
	term("stomach", model.RegionAbdomenPelvis, false),
	term("pelvis", model.RegionAbdomenPelvis, false),
	term("groin", model.RegionAbdomenPelvis, false),
	term("hips?", model.RegionHipUpperLeg, false),
	term("thighs?", model.RegionHipUpperLeg, false),
	term("femur", model.RegionHipUpperLeg, false),
	term("knees?", model.RegionKneeLowerLegFoot, false),
	term("shins?", model.RegionKneeLowerLegFoot, false),
	term("ankles?", model.RegionKneeLowerLegFoot, false),
	term("foot", model.RegionKneeLowerLegFoot, true),
	term("feet", model.RegionKneeLowerLegFoot, false),
	term("toes?", model.RegionKneeLowerLegFoot, false),
	term("legs?", model.RegionKneeLowerLegFoot, true),
}

var (
	injuryAnchorPattern = regexp.MustCompile(`(?i)\binjur|\bcomplain|\bpain\b|\bhurt\b|\bbleed|\blaceration|\babrasion|\bfracture|\bbroken\b|\bbruis|\bsore\b|\bswollen\b|\bcut\b|\bscrape|\bsprain`)
	headOnPattern       = regexp.MustCompile(`(?i)\bhead[\s-]+on\b|\bhead(?:ed|ing)\b`)
)

// ParseInjuryRegion picks the injured body region. A coded or labelled
// value wins; otherwise body-part words in the narrative are ranked by how
// closely they sit to injury wording and by how specific the phrase is.
func ParseInjuryRegion(lines []normalize.Line) []Candidate[model.InjuryRegion] {
	var out []Candidate[model.InjuryRegion]
	for _, h := range regionLabels.find(lines) {
		if m := regionCodePattern.FindStringSubmatch(h.Value); m != nil {
			code, _ := strconv.Atoi(m[1])
			if region, ok := model.RegionFromCode(code); ok {
				out = append(out, Candidate[model.InjuryRegion]{Value: region, Confidence: h.Confidence, Line: h.Line, Offset: h.Offset, Specificity: 10})
			}
			continue
		}
		for _, c := range matchRegions(h.Value, h.Line, h.Offset, true) {
			c.Confidence = h.Confidence
			out = append(out, c)
		}
	}
	if len(out) > 0 {
		return out
	}

	for i, line := range lines {
		anchored := injuryAnchorPattern.MatchString(line.Text)
		for _, c := range matchRegions(line.Text, i, 0, anchored) {
			if anchored {
				c.Confidence = ConfidenceFuzzy
			} else {
				c.Confidence = ConfidencePositional
			}
			out = append(out, c)
		}
	}
	return out
}

// matchRegions finds body-part phrases in s. Overlapping shorter phrases
// ("arm" inside "upper arm") are dropped in favour of the longer one.
func matchRegions(s string, line, base int, anchored bool) []Candidate[model.InjuryRegion] {
	masked := headOnPattern.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Repeat(" ", len(m))
	})

	type span struct{ start, end int }
	var taken []span
	var out []Candidate[model.InjuryRegion]
	for _, t := range regionTerms {
		if t.needsAnchor && !anchored {
			continue
		}
		for _, loc := range t.pattern.FindAllStringIndex(masked, -1) {
			overlap := false
			for _, sp := range taken {
				if loc[0] < sp.end && loc[1] > sp.start {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}
			taken = append(taken, span{loc[0], loc[1]})
			out = append(out, Candidate[model.InjuryRegion]{
				Value:       t.region,
				Line:        line,
				Offset:      base + loc[0],
				Specificity: t.words,
			})
		}
	}
	return out
}
