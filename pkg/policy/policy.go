// Package policy implements statement-level merging of AWS-style JSON policy
// documents. The same engine is used for bucket policies, notification-topic
// policies, shared-key policies and catalog resource policies.
package policy

import (
	"encoding/json"
	"fmt"
)

const Version = "2012-10-17"

// Kind selects the size limit the owning service enforces on a document.
type Kind string

const (
	KindBucket  Kind = "bucket"
	KindKey     Kind = "key"
	KindTopic   Kind = "topic"
	KindCatalog Kind = "catalog"
)

func (k Kind) maxLength() int {
	switch k {
	case KindBucket:
		return 20480
	case KindKey:
		return 32768
	case KindTopic:
		return 30720
	case KindCatalog:
		return 10240
	default:
		return 6144
	}
}

// StringList marshals as a bare string when it holds a single element, the
// compact form AWS emits, and unmarshals either form.
type StringList []string

func (s StringList) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = list
	return nil
}

// Principal is either the wildcard principal or a set of account-typed
// principal ARNs.
type Principal struct {
	Any bool
	AWS StringList
}

func (p Principal) MarshalJSON() ([]byte, error) {
	if p.Any {
		return json.Marshal("*")
	}
	return json.Marshal(struct {
		AWS StringList `json:"AWS"`
	}{AWS: p.AWS})
}

func (p *Principal) UnmarshalJSON(data []byte) error {
	var wildcard string
	if err := json.Unmarshal(data, &wildcard); err == nil {
		if wildcard != "*" {
			return fmt.Errorf("unsupported principal %q", wildcard)
		}
		*p = Principal{Any: true}
		return nil
	}
	var typed struct {
		AWS StringList `json:"AWS"`
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	*p = Principal{AWS: typed.AWS}
	return nil
}

type Statement struct {
	Sid       string                           `json:"Sid,omitempty"`
	Effect    string                           `json:"Effect"`
	Principal *Principal                       `json:"Principal,omitempty"`
	Action    StringList                       `json:"Action,omitempty"`
	Resource  StringList                       `json:"Resource,omitempty"`
	Condition map[string]map[string]StringList `json:"Condition,omitempty"`
}

// Document is an ordered set of statements. At most one statement exists per
// sid. Documents are value objects: every mutating operation returns a copy.
type Document struct {
	Version    string      `json:"Version"`
	Statements []Statement `json:"Statement"`
}

func NewDocument(statements ...Statement) Document {
	return Document{Version: Version, Statements: statements}
}

func (d Document) HasStatements() bool {
	return len(d.Statements) > 0
}

func (d Document) StatementBySid(sid string) (Statement, bool) {
	for _, s := range d.Statements {
		if s.Sid == sid {
			return s, true
		}
	}
	return Statement{}, false
}

// AddOrUpdateStatement replaces the statement carrying the same sid, or
// appends when none exists.
func (d Document) AddOrUpdateStatement(statement Statement) Document {
	statements := make([]Statement, 0, len(d.Statements)+1)
	for _, s := range d.Statements {
		if s.Sid != "" && s.Sid == statement.Sid {
			continue
		}
		statements = append(statements, s)
	}
	statements = append(statements, statement)
	return Document{Version: d.version(), Statements: statements}
}

func (d Document) DeleteStatementIfPresent(sid string) Document {
	statements := make([]Statement, 0, len(d.Statements))
	for _, s := range d.Statements {
		if s.Sid == sid {
			continue
		}
		statements = append(statements, s)
	}
	return Document{Version: d.version(), Statements: statements}
}

// RemoveResourceFromStatement removes one resource from the named statement's
// resource list. The statement is dropped entirely when its resource list
// empties; callers are expected to delete the remote policy when the whole
// document empties.
func (d Document) RemoveResourceFromStatement(sid, resource string) Document {
	statement, ok := d.StatementBySid(sid)
	if !ok {
		return d
	}
	remaining := make(StringList, 0, len(statement.Resource))
	for _, r := range statement.Resource {
		if r == resource {
			continue
		}
		remaining = append(remaining, r)
	}
	if len(remaining) == 0 {
		return d.DeleteStatementIfPresent(sid)
	}
	statement.Resource = remaining
	return d.AddOrUpdateStatement(statement)
}

// Encode renders the document as the compact JSON AWS size limits are
// measured against.
func (d Document) Encode() (string, error) {
	raw, err := json.Marshal(struct {
		Version   string      `json:"Version"`
		Statement []Statement `json:"Statement"`
	}{Version: d.version(), Statement: d.Statements})
	if err != nil {
		return "", fmt.Errorf("encode policy document: %w", err)
	}
	return string(raw), nil
}

// Validate checks the encoded document against the owning service's size
// limit.
func (d Document) Validate(kind Kind) error {
	encoded, err := d.Encode()
	if err != nil {
		return err
	}
	if limit := kind.maxLength(); len(encoded) > limit {
		return &SizeExceededError{Kind: kind, Size: len(encoded), Limit: limit}
	}
	return nil
}

func Decode(raw string) (Document, error) {
	var d Document
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Document{}, fmt.Errorf("decode policy document: %w", err)
	}
	return d, nil
}

func (d Document) version() string {
	if d.Version == "" {
		return Version
	}
	return d.Version
}

// VersionedDocument pairs a document with the opaque version token the owning
// service returned when it was read. Writes condition on the token so
// concurrent writers collide instead of overwriting each other.
type VersionedDocument struct {
	Document Document
	Hash     string
}

// SizeExceededError reports a document the owning service would reject as
// oversized. It is surfaced to the caller, never retried with truncation.
type SizeExceededError struct {
	Kind  Kind
	Size  int
	Limit int
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("%s policy document size %d exceeds limit %d", e.Kind, e.Size, e.Limit)
}
