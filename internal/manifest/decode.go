// ABOUTME: Explicit manifest decoder built on the easyjson lexer
// ABOUTME: Validates field types, tolerates missing optional fields, drops bad entries

package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"

	"github.com/mauromedda/pkgsync/internal/pkginfo"
)

// CollectionField is the wrapping field holding the package array. Any other
// wrapper name decodes to an empty manifest.
const CollectionField = "packageList"

// ErrEmptyPayload is returned when there is nothing to decode.
var ErrEmptyPayload = errors.New("empty manifest payload")

// Entry is one package as listed in the remote manifest.
type Entry struct {
	Name            string
	DisplayName     string
	Version         string
	VersionLatest   string
	GitURL          string
	IsLatestVersion bool
}

// Record converts the entry into a not-installed package record.
func (e Entry) Record() pkginfo.Record {
	return pkginfo.Record{
		Identifier:    e.Name,
		DisplayName:   pkginfo.NormalizeName(e.DisplayName),
		LatestVersion: e.VersionLatest,
		ListedVersion: e.Version,
		SourceLocator: e.GitURL,
		UpToDate:      e.IsLatestVersion,
	}
}

// Document is a decoded manifest.
type Document struct {
	Entries []Entry
	// Result carries the proxy's status code when it answered with one
	// instead of a package list.
	Result string
	// Dropped counts entries without a name or with a duplicate name.
	Dropped int
}

// Records converts every entry into a package record, in manifest order.
func (d *Document) Records() []pkginfo.Record {
	out := make([]pkginfo.Record, 0, len(d.Entries))
	for _, e := range d.Entries {
		out = append(out, e.Record())
	}
	return out
}

// Decode parses a manifest payload. Malformed JSON or wrongly typed fields
// return an error; a missing or differently named collection does not.
func Decode(payload string) (Document, error) {
	if strings.TrimSpace(payload) == "" {
		return Document{}, ErrEmptyPayload
	}
	var doc Document
	if err := easyjson.Unmarshal([]byte(payload), &doc); err != nil {
		return Document{}, fmt.Errorf("decoding manifest: %w", err)
	}
	return doc, nil
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler.
func (d *Document) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}

	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case CollectionField:
			d.decodeEntries(in)
		case "result":
			d.Result = in.String()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func (d *Document) decodeEntries(in *jlexer.Lexer) {
	seen := make(map[string]struct{})
	d.Entries = d.Entries[:0]

	in.Delim('[')
	for !in.IsDelim(']') {
		var e Entry
		e.UnmarshalEasyJSON(in)
		in.WantComma()
		if !in.Ok() {
			return
		}

		if e.Name == "" {
			d.Dropped++
			continue
		}
		if _, dup := seen[e.Name]; dup {
			d.Dropped++
			continue
		}
		seen[e.Name] = struct{}{}
		d.Entries = append(d.Entries, e)
	}
	in.Delim(']')
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler.
func (e *Entry) UnmarshalEasyJSON(in *jlexer.Lexer) {
	e.IsLatestVersion = true
	if in.IsNull() {
		in.Skip()
		return
	}

	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "name":
			e.Name = strings.TrimSpace(in.String())
		case "displayName":
			e.DisplayName = in.String()
		case "version":
			e.Version = in.String()
		case "versionLatest":
			e.VersionLatest = in.String()
		case "giturl":
			e.GitURL = in.String()
		case "isLatestVersion":
			e.IsLatestVersion = in.Bool()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}
