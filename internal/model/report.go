package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Report is the structured record extracted from one crash report document.
// Nullable fields are pointers and serialize as null rather than being omitted.
type Report struct {
	CaseNo          string        `json:"case_no"`          // Case number, e.g. "B3-063805"
	Filename        string        `json:"filename"`         // Source document name inside the documents dir
	Date            *Date         `json:"date"`             // Date of the crash
	Time            *Clock        `json:"time"`             // Time of day of the crash
	Location        *string       `json:"location"`         // Free-text location as written by the officer
	ReportText      string        `json:"report_text"`      // Officer narrative (empty only when unparseable)
	InjurySeverity  *Severity     `json:"injury_severity"`  // 1 = killed ... 5 = uninjured
	InjuryRegion    *InjuryRegion `json:"injury_region"`    // Primary injured body region
	CyclistDOB      *Date         `json:"cyclist_dob"`      // Cyclist's date of birth
	CyclistInitials *string       `json:"cyclist_initials"` // Cyclist's initials; names are never stored
	CyclistGender   *Gender       `json:"cyclist_gender"`   // M or F as recorded on the form
	HitAndRun       bool          `json:"hit_and_run"`      // A party left the scene
	ParseStatus     ParseStatus   `json:"parse_status"`     // complete, partial, unparseable

	UnparsedFields []string `json:"unparsed_fields,omitempty"` // Fields no parser could resolve
	Problems       []string `json:"problems,omitempty"`        // Per-document notes (recovered failures, conflicts)
}

// ParseStatus classifies how much of a document could be extracted
type ParseStatus string

const (
	StatusComplete    ParseStatus = "complete"    // Case number, date and narrative resolved
	StatusPartial     ParseStatus = "partial"     // Narrative resolved, date missing
	StatusUnparseable ParseStatus = "unparseable" // No usable text
)

// Valid reports whether s is one of the known statuses
func (s ParseStatus) Valid() bool {
	switch s {
	case StatusComplete, StatusPartial, StatusUnparseable:
		return true
	}
	return false
}

// Field names used in UnparsedFields and log output
const (
	FieldCaseNo          = "case_no"
	FieldDate            = "date"
	FieldTime            = "time"
	FieldLocation        = "location"
	FieldReportText      = "report_text"
	FieldInjurySeverity  = "injury_severity"
	FieldInjuryRegion    = "injury_region"
	FieldCyclistDOB      = "cyclist_dob"
	FieldCyclistInitials = "cyclist_initials"
	FieldCyclistGender   = "cyclist_gender"
	FieldHitAndRun       = "hit_and_run"
)

// Gender of a party as recorded on the form
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// ParseGender maps the form's sex field ("M", "Male", "f") to a Gender
func ParseGender(s string) (Gender, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M", "MALE":
		return GenderMale, true
	case "F", "FEMALE":
		return GenderFemale, true
	}
	return "", false
}

// Date is a calendar date without time zone, serialized as YYYY-MM-DD
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate validates and constructs a Date
func NewDate(year int, month time.Month, day int) (Date, error) {
	if month < time.January || month > time.December {
		return Date{}, fmt.Errorf("invalid month %d", month)
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, fmt.Errorf("invalid day %d for %04d-%02d", day, year, month)
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns the date at midnight UTC
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is strictly earlier than other
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// Clock is a time of day, serialized as HH:MM
type Clock struct {
	Hour   int
	Minute int
}

// NewClock validates and constructs a Clock
func NewClock(hour, minute int) (Clock, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid time %02d:%02d", hour, minute)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	parsed, err := NewClock(h, m)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Severity is the injury severity on a five-point scale
type Severity int

const (
	SeverityKilled    Severity = 1 // Fatal injury
	SeverityDisabling Severity = 2 // Disabling / incapacitating injury
	SeverityVisible   Severity = 3 // Visible, not disabling
	SeverityPossible  Severity = 4 // Possible injury, complaint of pain
	SeverityUninjured Severity = 5 // No injury
)

// Valid reports whether s is within the scale
func (s Severity) Valid() bool {
	return s >= SeverityKilled && s <= SeverityUninjured
}

func (s Severity) String() string {
	switch s {
	case SeverityKilled:
		return "killed"
	case SeverityDisabling:
		return "disabling"
	case SeverityVisible:
		return "visible"
	case SeverityPossible:
		return "possible"
	case SeverityUninjured:
		return "uninjured"
	default:
		return "unknown"
	}
}

// InjuryRegion is the primary injured body region, from the form's closed code table
type InjuryRegion string

const (
	RegionHead              InjuryRegion = "head"                 // 01
	RegionFace              InjuryRegion = "face"                 // 02
	RegionNeck              InjuryRegion = "neck"                 // 03
	RegionChest             InjuryRegion = "chest"                // 04
	RegionBackSpine         InjuryRegion = "back_spine"           // 05
	RegionShoulderUpperArm  InjuryRegion = "shoulder_upper_arm"   // 06
	RegionElbowLowerArmHand InjuryRegion = "elbow_lower_arm_hand" // 07
	RegionAbdomenPelvis     InjuryRegion = "abdomen_pelvis"       // 08
	RegionHipUpperLeg       InjuryRegion = "hip_upper_leg"        // 09
	RegionKneeLowerLegFoot  InjuryRegion = "knee_lower_leg_foot"  // 10
	RegionEntireBody        InjuryRegion = "entire_body"          // 11
	RegionUnknown           InjuryRegion = "unknown"              // 12
)

// InjuryRegions lists the closed set in form-code order
var InjuryRegions = []InjuryRegion{
	RegionHead, RegionFace, RegionNeck, RegionChest, RegionBackSpine,
	RegionShoulderUpperArm, RegionElbowLowerArmHand, RegionAbdomenPelvis,
	RegionHipUpperLeg, RegionKneeLowerLegFoot, RegionEntireBody, RegionUnknown,
}

// RegionFromCode maps a numeric form code (1-12) to its region
func RegionFromCode(code int) (InjuryRegion, bool) {
	if code < 1 || code > len(InjuryRegions) {
		return "", false
	}
	return InjuryRegions[code-1], true
}

// Valid reports whether r belongs to the closed set
func (r InjuryRegion) Valid() bool {
	for _, known := range InjuryRegions {
		if r == known {
			return true
		}
	}
	return false
}

// Label returns the human-readable region name
func (r InjuryRegion) Label() string {
	switch r {
	case RegionHead:
		return "Head"
	case RegionFace:
		return "Face"
	case RegionNeck:
		return "Neck"
	case RegionChest:
		return "Chest"
	case RegionBackSpine:
		return "Back/spine"
	case RegionShoulderUpperArm:
		return "Shoulder/upper arm"
	case RegionElbowLowerArmHand:
		return "Elbow/lower arm/hand"
	case RegionAbdomenPelvis:
		return "Abdomen/pelvis"
	case RegionHipUpperLeg:
		return "Hip/upper leg"
	case RegionKneeLowerLegFoot:
		return "Knee/lower leg/foot"
	case RegionEntireBody:
		return "Entire body"
	default:
		return "Unknown"
	}
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
