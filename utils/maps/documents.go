// Package maps keeps typed views over JSON records that other services also write.
// A document remembers the raw record it was read from; updates made through the typed
// fields are applied to the raw record as a JSON merge patch, so keys the typed view does
// not know about survive a read-modify-write.
package maps

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch"
	"text2phenotype.com/ner/utils"
)

type PartialDocument interface {
	getRaw() []byte
	setRaw([]byte)
}

type BaseDocument struct {
	rawJSON []byte
}

func (doc *BaseDocument) getRaw() []byte {
	return doc.rawJSON
}

func (doc *BaseDocument) setRaw(raw []byte) {
	doc.rawJSON = raw
}

// Raw is the full record, including keys the typed view does not declare.
func (doc *BaseDocument) Raw() []byte {
	return doc.rawJSON
}

// FillFromJSON sets the typed fields of doc from raw and keeps raw for later updates.
func FillFromJSON(doc PartialDocument, raw []byte) error {
	if err := json.Unmarshal(raw, doc); err != nil {
		return err
	}
	doc.setRaw(append([]byte(nil), raw...))
	return nil
}

// Marshal returns the full record of doc. A document never filled from JSON is just its typed view.
func Marshal(doc PartialDocument) ([]byte, error) {
	if doc.getRaw() == nil {
		return json.Marshal(doc)
	}
	return doc.getRaw(), nil
}

// CopyValues fills the typed fields of to from the record of from. The record of to becomes
// exactly its typed view.
func CopyValues(from PartialDocument, to PartialDocument) error {
	raw, err := Marshal(from)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, to); err != nil {
		return err
	}
	b, err := json.Marshal(to)
	if err != nil {
		return err
	}
	to.setRaw(b)
	return nil
}

// ApplyUpdates runs update, which changes typed fields of doc, and merges the change into
// the raw record. A field set to nil removes its key.
func ApplyUpdates(doc PartialDocument, update func()) (err error) {
	if update == nil {
		return nil
	}
	defer utils.RecoverWithError(&err)
	before, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	update()
	after, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if doc.getRaw() == nil {
		doc.setRaw(after)
		return nil
	}
	patch, err := jsonpatch.CreateMergePatch(before, after)
	if err != nil {
		return err
	}
	merged, err := jsonpatch.MergePatch(doc.getRaw(), patch)
	if err != nil {
		return err
	}
	doc.setRaw(merged)
	return nil
}
