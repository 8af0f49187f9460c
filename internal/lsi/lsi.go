// Package lsi implements the Local Sovereign Index: a content-addressed,
// two-tier (staging/committed) store of JSON triplets (body/links/manifest)
// with a refs-by-id symbol table and strict visibility-layered link
// validation. Grounded on the source system's
// orket/kernel/v1/state/lsi.py.
package lsi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/McElyea/orket-kernel/internal/canon"
	"github.com/McElyea/orket-kernel/internal/fsutil"
	"github.com/McElyea/orket-kernel/internal/kernel/codes"
	"github.com/McElyea/orket-kernel/internal/kernel/contracts"
	"github.com/McElyea/orket-kernel/internal/kernel/event"
	"github.com/McElyea/orket-kernel/internal/objectstore"
)

// Version is the lsi_version stamped onto every triplet and ref record.
const Version = "lsi/v1"

// TripletRecord is the `triplets/<stem>.json` record.
type TripletRecord struct {
	LSIVersion     string `json:"lsi_version"`
	Stem           string `json:"stem"`
	DTOType        string `json:"dto_type,omitempty"`
	BodyDigest     string `json:"body_digest"`
	LinksDigest    string `json:"links_digest"`
	ManifestDigest string `json:"manifest_digest"`
	UpdatedAtTurn  string `json:"updated_at_turn"`
}

// RefSource is one occurrence of a (type,id) reference within a triplet's
// links graph.
type RefSource struct {
	Stem           string `json:"stem"`
	Location       string `json:"location"`
	Relationship   string `json:"relationship,omitempty"`
	ArtifactDigest string `json:"artifact_digest"`
}

// RefRecord is the `refs/by_id/<type>/<id>.json` symbol-table entry.
type RefRecord struct {
	LSIVersion string      `json:"lsi_version"`
	Type       string      `json:"type"`
	ID         string      `json:"id"`
	Sources    []RefSource `json:"sources"`
}

// Tombstone is the `triplets/<stem>.tombstone.json` deletion marker.
type Tombstone struct {
	Kind           string `json:"kind"`
	Stem           string `json:"stem"`
	DTOType        string `json:"dto_type,omitempty"`
	ID             string `json:"id,omitempty"`
	DeletedByTurn  string `json:"deleted_by_turn_id"`
}

// Index roots every scope (committed, or a single staging turn) under one
// workspace directory.
type Index struct {
	root string
}

// New returns an Index rooted at root (the `<workspace>/index/` directory).
func New(root string) *Index { return &Index{root: root} }

// CommittedRoot returns the committed scope's root directory.
func (ix *Index) CommittedRoot() string { return filepath.Join(ix.root, "committed") }

// StagingRoot returns a single turn's staging scope root directory.
func (ix *Index) StagingRoot(runID, turnID string) string {
	return filepath.Join(ix.root, "staging", canon.FSToken(runID), canon.FSToken(turnID))
}

func tripletPath(scopeRoot, stem string) string {
	return filepath.Join(scopeRoot, "triplets", filepath.FromSlash(stem)+".json")
}

func tombstonePath(scopeRoot, stem string) string {
	return filepath.Join(scopeRoot, "triplets", filepath.FromSlash(stem)+".tombstone.json")
}

func refPath(scopeRoot, refType, refID string) string {
	return filepath.Join(scopeRoot, "refs", "by_id", canon.FSToken(refType), canon.FSToken(refID)+".json")
}

// TripletPath, TombstonePath, RefPath, ReadJSONFile, and WriteJSONFile are
// exported so the promotion engine can address the same on-disk layout
// directly against committed.__new/ during the directory-swap protocol,
// without the package duplicating path or encoding conventions.
func TripletPath(scopeRoot, stem string) string { return tripletPath(scopeRoot, stem) }
func TombstonePath(scopeRoot, stem string) string { return tombstonePath(scopeRoot, stem) }
func RefPath(scopeRoot, refType, refID string) string { return refPath(scopeRoot, refType, refID) }
func ReadJSONFile(path string, dst any) (bool, error) { return readJSONFile(path, dst) }
func WriteJSONFile(path string, src any) error { return writeJSONFile(path, src) }

// RefOccurrence is one (type,id) reference found while walking a links blob.
type RefOccurrence struct {
	Pointer      string
	RefType      string
	RefID        string
	Relationship string
}

type refOccurrence = RefOccurrence

// ExtractRefs walks links (expected to be an object) in sorted key order,
// collecting every ref-shaped object or array element, per the ref
// extraction rule: a value matching is_ref_object is a ref at
// /links/<escaped-key>[/<index>]. Exported so the promotion engine can
// re-derive injected sources from staged links blobs without duplicating
// the walk.
func ExtractRefs(links canon.Value) ([]RefOccurrence, error) {
	if !links.IsObject() {
		return nil, fmt.Errorf("links is not an object")
	}
	var out []RefOccurrence
	for _, key := range links.SortedKeys() {
		val, _ := links.Get(key)
		escaped := canon.EscapePointerSegment(key)
		if val.IsRefObject() {
			out = append(out, RefOccurrence{
				Pointer:      "/links/" + escaped,
				RefType:      val.GetString("type"),
				RefID:        val.GetString("id"),
				Relationship: val.GetString("relationship"),
			})
			continue
		}
		if val.IsArray() {
			for idx, item := range val.Items() {
				if item.IsRefObject() {
					out = append(out, RefOccurrence{
						Pointer:      "/links/" + escaped + "/" + strconv.Itoa(idx),
						RefType:      item.GetString("type"),
						RefID:        item.GetString("id"),
						Relationship: item.GetString("relationship"),
					})
				}
			}
		}
	}
	return out, nil
}

func extractRefs(links canon.Value) ([]refOccurrence, error) { return ExtractRefs(links) }

func sortRefSources(sources []RefSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		a, b := sources[i], sources[j]
		if a.Stem != b.Stem {
			return a.Stem < b.Stem
		}
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		if a.Relationship != b.Relationship {
			return a.Relationship < b.Relationship
		}
		return a.ArtifactDigest < b.ArtifactDigest
	})
}

func readJSONFile(path string, dst any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSONFile(path string, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return fsutil.AtomicWriteBytes(path, data, 0o644)
}

// ReadRefRecord reads the ref-by-id record for (type,id) within scopeRoot.
func ReadRefRecord(scopeRoot, refType, refID string) (RefRecord, bool, error) {
	var rec RefRecord
	ok, err := readJSONFile(refPath(scopeRoot, refType, refID), &rec)
	return rec, ok, err
}

// ReadRefsSources reads the stored sources for (type,id) within scopeRoot,
// exactly as stored (not re-sorted).
func ReadRefsSources(scopeRoot, refType, refID string) ([]RefSource, bool, error) {
	rec, ok, err := ReadRefRecord(scopeRoot, refType, refID)
	if !ok || err != nil {
		return nil, ok, err
	}
	return rec.Sources, true, nil
}

// ReadTripletRecord reads the triplet record for stem within scopeRoot.
func ReadTripletRecord(scopeRoot, stem string) (TripletRecord, bool, error) {
	var rec TripletRecord
	ok, err := readJSONFile(tripletPath(scopeRoot, stem), &rec)
	return rec, ok, err
}

// StageTriplet canonicalizes body/links/manifest, stores their blobs,
// writes the triplet record, and updates the refs-by-id symbol table for
// every reference found in links — stem-scoped pruning followed by
// reinjection, all within the (run_id, turn_id) staging scope.
func (ix *Index) StageTriplet(runID, turnID, stem string, body, links, manifest canon.Value) contracts.Result {
	scopeRoot := ix.StagingRoot(runID, turnID)
	store := objectstore.New(scopeRoot)

	bodyDigest, err := store.PutValue(body)
	if err != nil {
		return failIO(codes.StageStaging, stem, err)
	}
	linksDigest, err := store.PutValue(links)
	if err != nil {
		return failIO(codes.StageStaging, stem, err)
	}
	manifestDigest, err := store.PutValue(manifest)
	if err != nil {
		return failIO(codes.StageStaging, stem, err)
	}

	dtoType := ""
	if body.IsObject() {
		dtoType = body.GetString("dto_type")
	}

	record := TripletRecord{
		LSIVersion:     Version,
		Stem:           stem,
		DTOType:        dtoType,
		BodyDigest:     bodyDigest,
		LinksDigest:    linksDigest,
		ManifestDigest: manifestDigest,
		UpdatedAtTurn:  turnID,
	}
	if err := writeJSONFile(tripletPath(scopeRoot, stem), record); err != nil {
		return failIO(codes.StageStaging, stem, err)
	}

	if !links.IsObject() {
		issue := contracts.NewIssue(codes.StageStaging, codes.EBaseShapeInvalidLinksValue, "/links",
			"links must be a JSON object", nil)
		return contracts.Fail([]contracts.Issue{issue})
	}

	occurrences, err := extractRefs(links)
	if err != nil {
		issue := contracts.NewIssue(codes.StageStaging, codes.EBaseShapeInvalidLinksValue, "/links", err.Error(), nil)
		return contracts.Fail([]contracts.Issue{issue})
	}

	grouped := map[[2]string][]refOccurrence{}
	order := [][2]string{}
	for _, occ := range occurrences {
		key := [2]string{occ.RefType, occ.RefID}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], occ)
	}

	events := []string{}
	for _, key := range order {
		refType, refID := key[0], key[1]
		rec, _, err := ReadRefRecord(scopeRoot, refType, refID)
		if err != nil {
			return failIO(codes.StageStaging, stem, err)
		}
		rec.LSIVersion = Version
		rec.Type = refType
		rec.ID = refID

		pruned := rec.Sources[:0:0]
		for _, src := range rec.Sources {
			if src.Stem != stem {
				pruned = append(pruned, src)
			}
		}
		for _, occ := range grouped[key] {
			pruned = append(pruned, RefSource{
				Stem:           stem,
				Location:       occ.Pointer,
				Relationship:   occ.Relationship,
				ArtifactDigest: linksDigest,
			})
		}
		sortRefSources(pruned)
		rec.Sources = pruned

		if err := writeJSONFile(refPath(scopeRoot, refType, refID), rec); err != nil {
			return failIO(codes.StageStaging, stem, err)
		}
		events = append(events, event.Format(event.LevelInfo, codes.StageStaging, codes.IRefVisible,
			"/links", "ref staged", map[string]any{"type": refType, "id": refID, "stem": stem}))
	}

	return contracts.Pass(events...)
}

func failIO(stage, stem string, err error) contracts.Result {
	issue := contracts.NewIssue(stage, "E_IO_FAILURE", "/ci/schema", err.Error(), map[string]any{"stem": stem})
	return contracts.Fail([]contracts.Issue{issue})
}

// visibilityLayer identifies which of the three probe layers found a source.
type visibilityLayer string

const (
	visibilitySelf      visibilityLayer = "self"
	visibilityStaging   visibilityLayer = "staging"
	visibilityCommitted visibilityLayer = "committed"
	visibilityNone      visibilityLayer = "none"
)

func lookupVisibility(stagingRoot, committedRoot, stem, refType, refID string) (visibilityLayer, error) {
	stagingSources, ok, err := ReadRefsSources(stagingRoot, refType, refID)
	if err != nil {
		return visibilityNone, err
	}
	if ok {
		for _, src := range stagingSources {
			if src.Stem == stem {
				return visibilitySelf, nil
			}
		}
		if len(stagingSources) > 0 {
			return visibilityStaging, nil
		}
	}

	committedSources, ok, err := ReadRefsSources(committedRoot, refType, refID)
	if err != nil {
		return visibilityNone, err
	}
	if ok && len(committedSources) > 0 {
		return visibilityCommitted, nil
	}

	return visibilityNone, nil
}

// ValidateLinksAgainstIndex validates every reference in the staged stem's
// links blob against the Self → Staging → Committed visibility layers,
// returning issues sorted by (location, code, details).
func (ix *Index) ValidateLinksAgainstIndex(runID, turnID, stem string) contracts.Result {
	stagingRoot := ix.StagingRoot(runID, turnID)
	committedRoot := ix.CommittedRoot()

	record, ok, err := ReadTripletRecord(stagingRoot, stem)
	if err != nil {
		return failIO(codes.StageValidation, stem, err)
	}
	if !ok {
		issue := contracts.NewIssue(codes.StageValidation, codes.ERelationshipOrphan, "/ci/schema",
			"no staged triplet for stem "+stem, map[string]any{"stem": stem})
		return contracts.Fail([]contracts.Issue{issue})
	}

	store := objectstore.New(stagingRoot)
	links, found, err := store.GetValue(record.LinksDigest)
	if err != nil || !found || !links.IsObject() {
		issue := contracts.NewIssue(codes.StageValidation, codes.EBaseShapeInvalidLinksValue, "/links",
			"links blob missing or not an object", map[string]any{"stem": stem})
		return contracts.Fail([]contracts.Issue{issue})
	}

	occurrences, err := extractRefs(links)
	if err != nil {
		issue := contracts.NewIssue(codes.StageValidation, codes.EBaseShapeInvalidLinksValue, "/links", err.Error(), nil)
		return contracts.Fail([]contracts.Issue{issue})
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		a, b := occurrences[i], occurrences[j]
		if a.Pointer != b.Pointer {
			return a.Pointer < b.Pointer
		}
		if a.RefType != b.RefType {
			return a.RefType < b.RefType
		}
		return a.RefID < b.RefID
	})

	var issues []contracts.Issue
	var events []string
	for _, occ := range occurrences {
		layer, err := lookupVisibility(stagingRoot, committedRoot, stem, occ.RefType, occ.RefID)
		if err != nil {
			return failIO(codes.StageValidation, stem, err)
		}
		if layer == visibilityNone {
			issues = append(issues, contracts.NewIssue(codes.StageValidation, codes.ERelationshipOrphan,
				occ.Pointer+"/id", "reference not visible in self, staging, or committed scope",
				map[string]any{"type": occ.RefType, "id": occ.RefID}))
			continue
		}
		events = append(events, event.Format(event.LevelInfo, codes.StageValidation, codes.IRefVisible,
			occ.Pointer, "reference visible", map[string]any{"layer": string(layer), "type": occ.RefType, "id": occ.RefID}))
	}

	if len(issues) > 0 {
		return contracts.Fail(issues, events...)
	}
	return contracts.Pass(events...)
}

// StageTombstone writes a tombstone marker requesting stem's deletion at the
// next promotion.
func (ix *Index) StageTombstone(runID, turnID, stem, dtoType, id string) error {
	scopeRoot := ix.StagingRoot(runID, turnID)
	ts := Tombstone{
		Kind:          "tombstone",
		Stem:          stem,
		DTOType:       dtoType,
		ID:            id,
		DeletedByTurn: turnID,
	}
	return writeJSONFile(tombstonePath(scopeRoot, stem), ts)
}
