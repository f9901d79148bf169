// Package util resolves user-supplied DICOM field names for de-identification.
package util

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// TagScope represents the DICOM hierarchy level a field belongs to.
type TagScope int

const (
	// ScopePatient indicates fields that identify the patient.
	ScopePatient TagScope = iota
	// ScopeStudy indicates fields shared by a study: site, staff, request.
	ScopeStudy
	// ScopeSeries indicates fields describing one series.
	ScopeSeries
	// ScopeImage indicates fields that vary per image.
	ScopeImage

	// ScopeUnknown is used for tags missing from the registry.
	ScopeUnknown TagScope = -1
)

// Scopes lists the registry scopes from the patient down to the image.
var Scopes = []TagScope{ScopePatient, ScopeStudy, ScopeSeries, ScopeImage}

// String returns the string representation of a TagScope.
func (s TagScope) String() string {
	switch s {
	case ScopePatient:
		return "Patient"
	case ScopeStudy:
		return "Study"
	case ScopeSeries:
		return "Series"
	case ScopeImage:
		return "Image"
	default:
		return "Unknown"
	}
}

// TagInfo describes a field that can be removed by name.
type TagInfo struct {
	Name  string
	Tag   tag.Tag
	Scope TagScope
}

// tagRegistry maps lowercase field names to their TagInfo.
var tagRegistry = map[string]TagInfo{
	// Patient level
	"patientname":      {Name: "PatientName", Tag: tag.PatientName, Scope: ScopePatient},
	"patientid":        {Name: "PatientID", Tag: tag.PatientID, Scope: ScopePatient},
	"patientbirthdate": {Name: "PatientBirthDate", Tag: tag.PatientBirthDate, Scope: ScopePatient},
	"patientbirthtime": {Name: "PatientBirthTime", Tag: tag.PatientBirthTime, Scope: ScopePatient},
	"patientsex":       {Name: "PatientSex", Tag: tag.PatientSex, Scope: ScopePatient},
	"patientage":       {Name: "PatientAge", Tag: tag.PatientAge, Scope: ScopePatient},
	"patientweight":    {Name: "PatientWeight", Tag: tag.PatientWeight, Scope: ScopePatient},

	// Study level
	"accessionnumber":                   {Name: "AccessionNumber", Tag: tag.AccessionNumber, Scope: ScopeStudy},
	"institutionname":                   {Name: "InstitutionName", Tag: tag.InstitutionName, Scope: ScopeStudy},
	"institutionaddress":                {Name: "InstitutionAddress", Tag: tag.InstitutionAddress, Scope: ScopeStudy},
	"referringphysicianname":            {Name: "ReferringPhysicianName", Tag: tag.ReferringPhysicianName, Scope: ScopeStudy},
	"referringphysicianaddress":         {Name: "ReferringPhysicianAddress", Tag: tag.ReferringPhysicianAddress, Scope: ScopeStudy},
	"referringphysiciantelephonenumbers": {Name: "ReferringPhysicianTelephoneNumbers", Tag: tag.ReferringPhysicianTelephoneNumbers, Scope: ScopeStudy},
	"stationname":                       {Name: "StationName", Tag: tag.StationName, Scope: ScopeStudy},
	"studydescription":                  {Name: "StudyDescription", Tag: tag.StudyDescription, Scope: ScopeStudy},
	"institutionaldepartmentname":       {Name: "InstitutionalDepartmentName", Tag: tag.InstitutionalDepartmentName, Scope: ScopeStudy},
	"physiciansofrecord":                {Name: "PhysiciansOfRecord", Tag: tag.PhysiciansOfRecord, Scope: ScopeStudy},
	"performingphysicianname":           {Name: "PerformingPhysicianName", Tag: tag.PerformingPhysicianName, Scope: ScopeStudy},
	"nameofphysiciansreadingstudy":      {Name: "NameOfPhysiciansReadingStudy", Tag: tag.NameOfPhysiciansReadingStudy, Scope: ScopeStudy},
	"operatorsname":                     {Name: "OperatorsName", Tag: tag.OperatorsName, Scope: ScopeStudy},
	"admittingdiagnosesdescription":     {Name: "AdmittingDiagnosesDescription", Tag: tag.AdmittingDiagnosesDescription, Scope: ScopeStudy},
	"studyid":                           {Name: "StudyID", Tag: tag.StudyID, Scope: ScopeStudy},
	"studydate":                         {Name: "StudyDate", Tag: tag.StudyDate, Scope: ScopeStudy},

	// Series level
	"seriesdescription":  {Name: "SeriesDescription", Tag: tag.SeriesDescription, Scope: ScopeSeries},
	"protocolname":       {Name: "ProtocolName", Tag: tag.ProtocolName, Scope: ScopeSeries},
	"deviceserialnumber": {Name: "DeviceSerialNumber", Tag: tag.DeviceSerialNumber, Scope: ScopeSeries},
	"vendorcustomfield":  {Name: "VendorCustomField", Tag: tag.Tag{Group: 0x0014, Element: 0x03E9}, Scope: ScopeSeries},

	// Image level
	"instancecreatoruid":       {Name: "InstanceCreatorUID", Tag: tag.InstanceCreatorUID, Scope: ScopeImage},
	"sopinstanceuid":           {Name: "SOPInstanceUID", Tag: tag.SOPInstanceUID, Scope: ScopeImage},
	"referencedsopinstanceuid": {Name: "ReferencedSOPInstanceUID", Tag: tag.ReferencedSOPInstanceUID, Scope: ScopeImage},
	"derivationdescription":    {Name: "DerivationDescription", Tag: tag.DerivationDescription, Scope: ScopeImage},
	"contentdate":              {Name: "ContentDate", Tag: tag.ContentDate, Scope: ScopeImage},
}

// GetTagByName returns TagInfo for a given field name.
// The lookup is case-insensitive. If the name is not found, an error is returned
// with a suggestion for the closest matching name (using Levenshtein distance).
func GetTagByName(name string) (TagInfo, error) {
	normalizedName := strings.ToLower(strings.TrimSpace(name))

	if info, ok := tagRegistry[normalizedName]; ok {
		return info, nil
	}

	suggestion := findClosestTagName(normalizedName)
	if suggestion != "" {
		return TagInfo{}, fmt.Errorf("unknown field %q, did you mean %q?", name, suggestion)
	}

	return TagInfo{}, fmt.Errorf("unknown field %q", name)
}

// LookupTag returns the registry entry for t.
func LookupTag(t tag.Tag) (TagInfo, bool) {
	for _, info := range tagRegistry {
		if info.Tag == t {
			return info, true
		}
	}
	return TagInfo{}, false
}

// NameOf returns the registry name of t, or its "(gggg,eeee)" form.
func NameOf(t tag.Tag) string {
	if info, ok := LookupTag(t); ok {
		return info.Name
	}
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// GroupByScope splits tags by registry scope, keeping their order within each
// scope. Unregistered tags are grouped under ScopeUnknown.
func GroupByScope(tags []tag.Tag) map[TagScope][]tag.Tag {
	groups := make(map[TagScope][]tag.Tag)
	for _, t := range tags {
		scope := ScopeUnknown
		if info, ok := LookupTag(t); ok {
			scope = info.Scope
		}
		groups[scope] = append(groups[scope], t)
	}
	return groups
}

// Names returns every registered field name in lexical order.
func Names() []string {
	names := make([]string, 0, len(tagRegistry))
	for _, info := range tagRegistry {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}

// ParseTag resolves a field given by name ("PatientName") or by number
// ("0010,0010", "(0010,0010)" or "00100010").
func ParseTag(s string) (tag.Tag, error) {
	s = strings.TrimSpace(s)
	if t, ok := parseHexTag(s); ok {
		return t, nil
	}
	info, err := GetTagByName(s)
	if err != nil {
		return tag.Tag{}, err
	}
	return info.Tag, nil
}

// ParseTagList resolves a comma-separated list of fields. Commas inside
// parentheses belong to a numeric tag. Duplicates are removed, order is kept.
func ParseTagList(s string) ([]tag.Tag, error) {
	var (
		tags  []tag.Tag
		seen  = make(map[tag.Tag]bool)
		depth int
		start int
	)
	add := func(item string) error {
		if strings.TrimSpace(item) == "" {
			return nil
		}
		t, err := ParseTag(item)
		if err != nil {
			return err
		}
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
		return nil
	}
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				if err := add(s[start:i]); err != nil {
					return nil, err
				}
				start = i + 1
			}
		}
	}
	if err := add(s[start:]); err != nil {
		return nil, err
	}
	return tags, nil
}

func parseHexTag(s string) (tag.Tag, bool) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	var group, element string
	switch {
	case len(s) == 9 && s[4] == ',':
		group, element = s[:4], s[5:]
	case len(s) == 8:
		group, element = s[:4], s[4:]
	default:
		return tag.Tag{}, false
	}
	g, err := strconv.ParseUint(group, 16, 16)
	if err != nil {
		return tag.Tag{}, false
	}
	e, err := strconv.ParseUint(element, 16, 16)
	if err != nil {
		return tag.Tag{}, false
	}
	return tag.Tag{Group: uint16(g), Element: uint16(e)}, true
}

// findClosestTagName finds the closest matching field name using Levenshtein distance.
// Returns empty string if no close match is found (distance > 5).
func findClosestTagName(input string) string {
	const maxDistance = 5
	bestDistance := maxDistance + 1
	var bestMatch string

	// Iterate in name order so ties resolve the same way every run.
	keys := make([]string, 0, len(tagRegistry))
	for key := range tagRegistry {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		distance := levenshteinDistance(input, key)
		if distance < bestDistance {
			bestDistance = distance
			bestMatch = tagRegistry[key].Name
		}
	}

	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance calculates the Levenshtein distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
