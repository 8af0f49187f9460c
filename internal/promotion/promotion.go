// Package promotion implements the atomic committed-directory swap that
// advances the Local Sovereign Index's committed scope by exactly one
// sequential turn: preflight ledger checks, tombstone validation,
// stem-scoped ref pruning, re-injection of promoted links, and the
// two-phase os.Rename swap. Grounded on
// original_source/orket/kernel/v1/state/promotion.py.
package promotion

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/McElyea/orket-kernel/internal/fsutil"
	"github.com/McElyea/orket-kernel/internal/kernel/codes"
	"github.com/McElyea/orket-kernel/internal/kernel/contracts"
	"github.com/McElyea/orket-kernel/internal/kernel/event"
	"github.com/McElyea/orket-kernel/internal/lsi"
	"github.com/McElyea/orket-kernel/internal/objectstore"
)

// Ledger is the `committed/index/run_ledger.json` record.
type Ledger struct {
	LSIVersion       string `json:"lsi_version"`
	LastPromotedTurn string `json:"last_promoted_turn_id"`
}

const zeroTurn = "turn-0000"

func ledgerPath(committedRoot string) string {
	return filepath.Join(committedRoot, "index", "run_ledger.json")
}

// ParseTurnIndex parses a `turn-NNNN` identifier into its zero-padded
// 4-digit sequence number, rejecting any non-canonical form.
func ParseTurnIndex(turnID string) (int, error) {
	const prefix = "turn-"
	if !strings.HasPrefix(turnID, prefix) {
		return 0, fmt.Errorf("turn id %q missing %q prefix", turnID, prefix)
	}
	digits := turnID[len(prefix):]
	if len(digits) != 4 {
		return 0, fmt.Errorf("turn id %q must have a zero-padded 4-digit index", turnID)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("turn id %q has a non-numeric index", turnID)
	}
	if FormatTurnID(n) != turnID {
		return 0, fmt.Errorf("turn id %q is not in canonical zero-padded form", turnID)
	}
	return n, nil
}

// FormatTurnID renders n as a canonical `turn-NNNN` identifier.
func FormatTurnID(n int) string {
	return fmt.Sprintf("turn-%04d", n)
}

func readLedger(committedRoot string) (Ledger, error) {
	var ledger Ledger
	ok, err := lsi.ReadJSONFile(ledgerPath(committedRoot), &ledger)
	if err != nil {
		return Ledger{}, err
	}
	if !ok {
		return Ledger{LSIVersion: lsi.Version, LastPromotedTurn: zeroTurn}, nil
	}
	return ledger, nil
}

// stagedStem is one staged triplet or tombstone discovered while walking a
// staging scope's triplets/ directory.
type stagedStem struct {
	stem       string
	tombstone  bool
	tombPayload lsi.Tombstone
}

// discoverStagedStems walks stagingRoot/triplets recursively, collecting
// non-tombstone triplet stems and tombstone stems. Tombstone payloads are
// not yet validated here.
func discoverStagedStems(stagingRoot string) ([]stagedStem, error) {
	root := filepath.Join(stagingRoot, "triplets")
	var out []stagedStem
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		switch {
		case strings.HasSuffix(rel, ".tombstone.json"):
			stem := strings.TrimSuffix(rel, ".tombstone.json")
			var ts lsi.Tombstone
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &ts); err != nil {
				return fmt.Errorf("tombstone %s: %w", rel, err)
			}
			out = append(out, stagedStem{stem: stem, tombstone: true, tombPayload: ts})
		case strings.HasSuffix(rel, ".json"):
			stem := strings.TrimSuffix(rel, ".json")
			out = append(out, stagedStem{stem: stem})
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

func copyDir(src, dst string) error {
	if !fsutil.Exists(src) {
		return os.MkdirAll(dst, 0o755)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

// mergeObjects copies every blob under src/objects into dst/objects,
// skipping any blob that already exists at the destination (content
// addressing guarantees an existing file is byte-identical).
func mergeObjects(srcRoot, dstRoot string) error {
	srcObjects := filepath.Join(srcRoot, "objects")
	if !fsutil.Exists(srcObjects) {
		return nil
	}
	return filepath.WalkDir(srcObjects, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcObjects, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dstRoot, "objects", rel)
		if fsutil.Exists(target) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

func removeStem(stagedStems []stagedStem) (promoted, tombstoned []string) {
	for _, s := range stagedStems {
		if s.tombstone {
			tombstoned = append(tombstoned, s.stem)
		} else {
			promoted = append(promoted, s.stem)
		}
	}
	sort.Strings(promoted)
	sort.Strings(tombstoned)
	return
}

// pruneCommittedRefs walks committedNewRoot/refs/by_id and removes every
// source whose stem is in prune, for every (type,id) ref record found.
func pruneCommittedRefs(committedNewRoot string, prune map[string]struct{}) error {
	root := filepath.Join(committedNewRoot, "refs", "by_id")
	if !fsutil.Exists(root) {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		var rec lsi.RefRecord
		ok, err := lsi.ReadJSONFile(path, &rec)
		if err != nil || !ok {
			return err
		}
		filtered := rec.Sources[:0:0]
		changed := false
		for _, src := range rec.Sources {
			if _, drop := prune[src.Stem]; drop {
				changed = true
				continue
			}
			filtered = append(filtered, src)
		}
		if !changed {
			return nil
		}
		rec.Sources = filtered
		return lsi.WriteJSONFile(path, rec)
	})
}

func deleteTombstonedTriplets(committedNewRoot string, tombstoned []string) error {
	for _, stem := range tombstoned {
		path := lsi.TripletPath(committedNewRoot, stem)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

type injectedSource struct {
	refType string
	refID   string
	src     lsi.RefSource
}

// reinjectLinks re-derives (type,id) sources from the promoted, non-
// tombstoned stems' staged links blobs and injects them into
// committed.__new/refs/by_id, returning I_REF_MULTISOURCE events for any
// resulting record spanning more than one distinct source stem.
func reinjectLinks(stagingRoot, committedNewRoot string, promoted []string) ([]string, error) {
	store := objectstore.New(stagingRoot)
	grouped := map[[2]string][]injectedSource{}
	var order [][2]string

	for _, stem := range promoted {
		record, ok, err := lsi.ReadTripletRecord(stagingRoot, stem)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		links, found, err := store.GetValue(record.LinksDigest)
		if err != nil {
			return nil, err
		}
		if !found || !links.IsObject() {
			continue
		}
		occurrences, err := lsi.ExtractRefs(links)
		if err != nil {
			return nil, err
		}
		for _, occ := range occurrences {
			key := [2]string{occ.RefType, occ.RefID}
			if _, seen := grouped[key]; !seen {
				order = append(order, key)
			}
			grouped[key] = append(grouped[key], injectedSource{
				refType: occ.RefType,
				refID:   occ.RefID,
				src: lsi.RefSource{
					Stem:           stem,
					Location:       occ.Pointer,
					Relationship:   occ.Relationship,
					ArtifactDigest: record.LinksDigest,
				},
			})
		}
	}

	var events []string
	for _, key := range order {
		refType, refID := key[0], key[1]
		path := lsi.RefPath(committedNewRoot, refType, refID)
		var rec lsi.RefRecord
		if _, err := lsi.ReadJSONFile(path, &rec); err != nil {
			return nil, err
		}
		rec.LSIVersion = lsi.Version
		rec.Type = refType
		rec.ID = refID
		for _, inj := range grouped[key] {
			rec.Sources = append(rec.Sources, inj.src)
		}
		sort.SliceStable(rec.Sources, func(i, j int) bool {
			a, b := rec.Sources[i], rec.Sources[j]
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
		if err := lsi.WriteJSONFile(path, rec); err != nil {
			return nil, err
		}

		distinctStems := map[string]struct{}{}
		for _, src := range rec.Sources {
			distinctStems[src.Stem] = struct{}{}
		}
		if len(distinctStems) > 1 {
			events = append(events, event.Format(event.LevelWarn, codes.StagePromotion, codes.IRefMultisource,
				"/refs/by_id", "reference has multiple source stems",
				map[string]any{"type": refType, "id": refID, "source_count": len(distinctStems)}))
		}
	}
	return events, nil
}

func validateTombstones(turnID string, stems []stagedStem) []contracts.Issue {
	var issues []contracts.Issue
	for _, s := range stems {
		if !s.tombstone {
			continue
		}
		loc := "/triplets/" + s.stem + ".tombstone.json"
		if s.tombPayload.Kind != "tombstone" {
			issues = append(issues, contracts.NewIssue(codes.StagePromotion, codes.ETombstoneInvalid, loc,
				"tombstone payload kind must be \"tombstone\"", map[string]any{"stem": s.stem}))
			continue
		}
		if s.tombPayload.Stem != s.stem {
			issues = append(issues, contracts.NewIssue(codes.StagePromotion, codes.ETombstoneStemMismatch, loc,
				"tombstone stem does not match its filename-derived stem",
				map[string]any{"stem": s.stem, "payload_stem": s.tombPayload.Stem}))
			continue
		}
		if s.tombPayload.DeletedByTurn != turnID {
			issues = append(issues, contracts.NewIssue(codes.StagePromotion, codes.ETombstoneInvalid, loc,
				"tombstone deleted_by_turn_id does not match the requested turn",
				map[string]any{"stem": s.stem, "deleted_by_turn_id": s.tombPayload.DeletedByTurn, "turn_id": turnID}))
		}
	}
	return issues
}

func failPromotion(code, message string, details map[string]any) contracts.Result {
	issue := contracts.NewIssue(codes.StagePromotion, code, "/ci/schema", message, details)
	return contracts.Fail([]contracts.Issue{issue})
}

// Promote runs the full preflight + atomic directory-swap protocol for
// (runID, turnID) against ix's committed scope. The committed directory is
// guaranteed untouched unless every preflight and swap-construction step
// succeeds.
func Promote(ix *lsi.Index, runID, turnID string) contracts.Result {
	committedRoot := ix.CommittedRoot()
	stagingRoot := ix.StagingRoot(runID, turnID)

	requested, err := ParseTurnIndex(turnID)
	if err != nil {
		return failPromotion(codes.EPromotionOutOfOrder, err.Error(), map[string]any{"turn_id": turnID})
	}

	ledger, err := readLedger(committedRoot)
	if err != nil {
		return failPromotion(codes.EPromotionFailed, err.Error(), nil)
	}
	last, err := ParseTurnIndex(ledger.LastPromotedTurn)
	if err != nil {
		return failPromotion(codes.EPromotionFailed, "corrupt ledger: "+err.Error(), nil)
	}

	if requested <= last {
		return failPromotion(codes.EPromotionAlreadyApplied, "turn already promoted",
			map[string]any{"turn_id": turnID, "last_promoted_turn_id": ledger.LastPromotedTurn})
	}
	if requested != last+1 {
		return failPromotion(codes.EPromotionOutOfOrder, "turn is not the immediate successor of the last promoted turn",
			map[string]any{"turn_id": turnID, "last_promoted_turn_id": ledger.LastPromotedTurn})
	}

	stagedStems, err := discoverStagedStems(stagingRoot)
	if err != nil {
		return failPromotion(codes.EPromotionFailed, err.Error(), nil)
	}
	if issues := validateTombstones(turnID, stagedStems); len(issues) > 0 {
		return contracts.Fail(issues)
	}
	promoted, tombstoned := removeStem(stagedStems)

	if len(promoted) == 0 && len(tombstoned) == 0 {
		ledger.LastPromotedTurn = turnID
		if err := lsi.WriteJSONFile(ledgerPath(committedRoot), ledger); err != nil {
			return failPromotion(codes.EPromotionFailed, err.Error(), nil)
		}
		ev := event.Format(event.LevelInfo, codes.StagePromotion, codes.INoopPromotion, "/ci/schema",
			"no staged stems; ledger advanced without content change", map[string]any{"turn_id": turnID})
		return contracts.Pass(ev)
	}

	newRoot := committedRoot + ".__new"
	bakRoot := committedRoot + ".__bak"
	_ = os.RemoveAll(newRoot)

	if err := copyDir(committedRoot, newRoot); err != nil {
		os.RemoveAll(newRoot)
		return failPromotion(codes.EPromotionFailed, err.Error(), nil)
	}
	if err := mergeObjects(stagingRoot, newRoot); err != nil {
		os.RemoveAll(newRoot)
		return failPromotion(codes.EPromotionFailed, err.Error(), nil)
	}
	for _, stem := range promoted {
		record, ok, err := lsi.ReadTripletRecord(stagingRoot, stem)
		if err != nil {
			os.RemoveAll(newRoot)
			return failPromotion(codes.EPromotionFailed, err.Error(), nil)
		}
		if !ok {
			continue
		}
		if err := lsi.WriteJSONFile(lsi.TripletPath(newRoot, stem), record); err != nil {
			os.RemoveAll(newRoot)
			return failPromotion(codes.EPromotionFailed, err.Error(), nil)
		}
	}

	prune := map[string]struct{}{}
	for _, stem := range promoted {
		prune[stem] = struct{}{}
	}
	for _, stem := range tombstoned {
		prune[stem] = struct{}{}
	}
	if err := pruneCommittedRefs(newRoot, prune); err != nil {
		os.RemoveAll(newRoot)
		return failPromotion(codes.EPromotionFailed, err.Error(), nil)
	}

	if err := deleteTombstonedTriplets(newRoot, tombstoned); err != nil {
		os.RemoveAll(newRoot)
		return failPromotion(codes.EPromotionFailed, err.Error(), nil)
	}

	events, err := reinjectLinks(stagingRoot, newRoot, promoted)
	if err != nil {
		os.RemoveAll(newRoot)
		return failPromotion(codes.EPromotionFailed, err.Error(), nil)
	}

	ledger.LastPromotedTurn = turnID
	if err := lsi.WriteJSONFile(ledgerPath(newRoot), ledger); err != nil {
		os.RemoveAll(newRoot)
		return failPromotion(codes.EPromotionFailed, err.Error(), nil)
	}

	if fsutil.Exists(committedRoot) {
		if err := os.Rename(committedRoot, bakRoot); err != nil {
			os.RemoveAll(newRoot)
			return failPromotion(codes.EPromotionFailed, err.Error(), nil)
		}
	}
	if err := os.Rename(newRoot, committedRoot); err != nil {
		// committed.__bak, if present, now signals a genuinely interrupted
		// swap; recovery is operator-triggered, never automatic on boot.
		return failPromotion(codes.EPromotionFailed, "directory swap failed after backup; manual recovery required: "+err.Error(),
			map[string]any{"turn_id": turnID})
	}

	_ = os.RemoveAll(bakRoot)
	_ = os.RemoveAll(stagingRoot)

	passEvent := event.Format(event.LevelInfo, codes.StagePromotion, codes.IPromotionPass, "/ci/schema",
		"turn promoted", map[string]any{"turn_id": turnID, "promoted_stems": len(promoted), "tombstoned_stems": len(tombstoned)})
	return contracts.Pass(append([]string{passEvent}, events...)...)
}
