// Package source discovers crash report documents and reads their raw page text.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	ErrBadFilename = errors.New("filename does not carry a case number")
	ErrUnsupported = errors.New("unsupported document type")
)

// Document is one crash report file in the input directory
type Document struct {
	CaseNo   string // Case number derived from the filename
	Filename string // Base name, e.g. "B3063805.PDF"
	Path     string // Full path
}

var (
	compactCaseNo = regexp.MustCompile(`^([A-Za-z]\d)(\d{4,})$`)
	dashedCaseNo  = regexp.MustCompile(`^([A-Za-z]\d)-(\d{4,})$`)
)

// CaseNoFromFilename derives the case number from a report filename:
// "B3063805.PDF" becomes "B3-063805". Names that already carry the dash
// are accepted as written.
func CaseNoFromFilename(name string) (string, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if m := dashedCaseNo.FindStringSubmatch(stem); m != nil {
		return strings.ToUpper(m[1]) + "-" + m[2], nil
	}
	if m := compactCaseNo.FindStringSubmatch(stem); m != nil {
		return strings.ToUpper(m[1]) + "-" + m[2], nil
	}
	return "", fmt.Errorf("%w: %s", ErrBadFilename, base)
}

// FilenameFromCaseNo returns the conventional document name for a case
func FilenameFromCaseNo(caseNo string) string {
	return strings.ToUpper(strings.ReplaceAll(caseNo, "-", "")) + ".PDF"
}

// NormalizeCaseNo canonicalizes operator input such as "b3063805" or
// "B3-063805" to the dashed form
func NormalizeCaseNo(s string) (string, error) {
	return CaseNoFromFilename(strings.TrimSpace(s))
}

// Discover lists the documents in dir sorted by case number. When several
// files map to the same case the first by name wins and the rest are logged.
func Discover(dir string, log logrus.FieldLogger) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	seen := make(map[string]string)
	var docs []Document
	for _, name := range names {
		caseNo, err := CaseNoFromFilename(name)
		if err != nil {
			log.WithField("file", name).Debug("Skipping file without case number")
			continue
		}
		if first, dup := seen[caseNo]; dup {
			log.WithFields(logrus.Fields{
				"case_no": caseNo,
				"file":    name,
				"kept":    first,
			}).Warn("Duplicate document for case, ignoring")
			continue
		}
		seen[caseNo] = name
		docs = append(docs, Document{
			CaseNo:   caseNo,
			Filename: name,
			Path:     filepath.Join(dir, name),
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].CaseNo < docs[j].CaseNo })
	return docs, nil
}
