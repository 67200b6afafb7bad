package storage

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/geometry"
	"github.com/zefrenchwan/txl.git/pattern"
	"github.com/zefrenchwan/txl.git/periods"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
	"github.com/zefrenchwan/txl.git/validity"
)

const (
	// DATE_SERDE_FORMAT is the format for dates to use in json
	DATE_SERDE_FORMAT = validity.BOUND_SERDE_FORMAT
	// RENDER_CELLS renders regions as s2 cell tokens
	RENDER_CELLS = "cells"
	// RENDER_WKT renders regions as wkt multipolygons
	RENDER_WKT = "wkt"
	// RENDER_GEOJSON renders regions as geojson multipolygons
	RENDER_GEOJSON = "geojson"
)

// ErrInvalidRender is returned for an unknown region rendering
var ErrInvalidRender = errors.New("invalid render")

// SnapshotDTO is a moment and the region from that moment.
// Region is either everywhere, a wkt or geojson geometry, or s2 cell tokens. No region means the empty region
type SnapshotDTO struct {
	At         string          `json:"at"`
	WKT        string          `json:"wkt,omitempty"`
	GeoJSON    json.RawMessage `json:"geojson,omitempty"`
	Cells      []string        `json:"cells,omitempty"`
	Everywhere bool            `json:"everywhere,omitempty"`
}

// TrackDTO is a track as its snapshots, last one is the end of the track
type TrackDTO struct {
	Snapshots []SnapshotDTO `json:"snapshots"`
}

// WindowDTO is a validity set, no track means never valid
type WindowDTO struct {
	Tracks []TrackDTO `json:"tracks"`
}

// IsEmpty returns true for windows with no track
func (w WindowDTO) IsEmpty() bool {
	return len(w.Tracks) == 0
}

// SerializeWindow returns the dto of a validity set, regions as cells
func SerializeWindow(value validity.Set) WindowDTO {
	// cells rendering cannot fail
	result, _ := SerializeWindowAs(value, RENDER_CELLS)
	return result
}

// ValidateRender returns an error for an unknown region rendering
func ValidateRender(render string) error {
	switch render {
	case "", RENDER_CELLS, RENDER_WKT, RENDER_GEOJSON:
		return nil
	default:
		return errors.Wrapf(ErrInvalidRender, "unknown render %q, expecting %s, %s or %s", render, RENDER_CELLS, RENDER_WKT, RENDER_GEOJSON)
	}
}

// SerializeWindowAs returns the dto of a validity set, regions rendered with render.
// Empty render means cells
func SerializeWindowAs(value validity.Set, render string) (WindowDTO, error) {
	var renderer func(geometry.Region, *SnapshotDTO) error
	switch render {
	case "", RENDER_CELLS:
		renderer = func(region geometry.Region, dto *SnapshotDTO) error {
			dto.Cells = region.CellTokens()
			return nil
		}
	case RENDER_WKT:
		renderer = func(region geometry.Region, dto *SnapshotDTO) error {
			var err error
			dto.WKT, err = region.WKT()
			return err
		}
	case RENDER_GEOJSON:
		renderer = func(region geometry.Region, dto *SnapshotDTO) error {
			var err error
			dto.GeoJSON, err = region.GeoJSON()
			return err
		}
	default:
		return WindowDTO{}, ValidateRender(render)
	}

	result := WindowDTO{Tracks: make([]TrackDTO, 0)}
	for _, track := range value.Tracks() {
		snapshots := track.Snapshots()
		current := TrackDTO{Snapshots: make([]SnapshotDTO, 0, len(snapshots))}
		for index, snapshot := range snapshots {
			dto := SnapshotDTO{At: snapshot.At.String()}
			switch {
			case index == len(snapshots)-1, snapshot.Region.IsEmpty():
				// last snapshot closes the track
			case snapshot.Region.IsUniversal():
				dto.Everywhere = true
			default:
				if err := renderer(snapshot.Region, &dto); err != nil {
					return WindowDTO{}, err
				}
			}

			current.Snapshots = append(current.Snapshots, dto)
		}

		result.Tracks = append(result.Tracks, current)
	}

	return result, nil
}

// SerializePeriod returns the period as a slice, one value per interval
func SerializePeriod(p periods.Period) []string {
	return periods.SerializePeriod(p, validity.BOUND_PRINT_FORMAT)
}

// DeserializePeriod reads a period written by SerializePeriod, RFC3339 moments accepted too
func DeserializePeriod(values []string) (periods.Period, error) {
	return periods.DeserializePeriod(values, DATE_SERDE_FORMAT, time.RFC3339)
}

// DeserializeWindow builds a validity set from its dto.
// Wkt regions use coverer, the default one if nil.
// Tracks may overlap, they are unified
func DeserializeWindow(dto WindowDTO, coverer *geometry.Coverer) (validity.Set, error) {
	tracks := make([]validity.Track, 0, len(dto.Tracks))
	var globalErr error
	for _, trackDTO := range dto.Tracks {
		snapshots := make([]validity.Snapshot, 0, len(trackDTO.Snapshots))
		for _, snapshotDTO := range trackDTO.Snapshots {
			snapshot, err := deserializeSnapshot(snapshotDTO, coverer)
			if err != nil {
				globalErr = errors.Join(globalErr, err)
				continue
			}

			snapshots = append(snapshots, snapshot)
		}

		if len(snapshots) != len(trackDTO.Snapshots) {
			continue
		}

		track, err := validity.NewTrackFromSnapshots(snapshots)
		if err != nil {
			globalErr = errors.Join(globalErr, err)
			continue
		}

		tracks = append(tracks, track)
	}

	if globalErr != nil {
		return validity.EmptySet(), globalErr
	}

	return validity.Unify(tracks...), nil
}

// deserializeSnapshot reads moment and region of a snapshot
func deserializeSnapshot(dto SnapshotDTO, coverer *geometry.Coverer) (validity.Snapshot, error) {
	var result validity.Snapshot
	moment, err := validity.ParseBound(dto.At)
	if err != nil {
		return result, err
	}

	result.At = moment
	switch {
	case dto.Everywhere:
		result.Region = geometry.Universe()
	case dto.WKT != "" && coverer != nil:
		result.Region, err = coverer.FromWKT(dto.WKT)
	case dto.WKT != "":
		result.Region, err = geometry.ParseWKT(dto.WKT)
	case len(dto.GeoJSON) != 0 && coverer != nil:
		result.Region, err = coverer.FromGeoJSON(dto.GeoJSON)
	case len(dto.GeoJSON) != 0:
		result.Region, err = geometry.ParseGeoJSON(dto.GeoJSON)
	case len(dto.Cells) != 0:
		result.Region, err = geometry.FromCellTokens(dto.Cells)
	default:
		result.Region = geometry.Empty()
	}

	return result, err
}

// StatementDTO is a statement as subject, predicate and object in SPARQL notation
type StatementDTO [3]string

// DeserializeStatements interns terms of statements into dictionary
func DeserializeStatements(values []StatementDTO, dictionary *terms.Dictionary) ([]store.Statement, error) {
	result := make([]store.Statement, 0, len(values))
	for _, value := range values {
		var ids [3]terms.TermID
		for position, raw := range value {
			term, err := terms.Parse(raw)
			if err != nil {
				return nil, err
			}

			if ids[position], err = dictionary.Intern(term); err != nil {
				return nil, err
			}
		}

		result = append(result, store.Statement{Subject: ids[0], Predicate: ids[1], Object: ids[2]})
	}

	return result, nil
}

// SerializeStatement returns the terms of a statement, unknown ids are left empty
func SerializeStatement(statement store.Statement, dictionary *terms.Dictionary) StatementDTO {
	var result StatementDTO
	for position, id := range [3]terms.TermID{statement.Subject, statement.Predicate, statement.Object} {
		if term, found := dictionary.Resolve(id); found {
			result[position] = term.String()
		}
	}

	return result
}

// RevisionDTO describes a revision
type RevisionDTO struct {
	Id          uint64    `json:"id"`
	Predecessor uint64    `json:"predecessor,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Contexts    []string  `json:"contexts"`
}

// SerializeRevision returns the dto of a revision
func SerializeRevision(revision *store.Revision) RevisionDTO {
	result := RevisionDTO{
		Id:          uint64(revision.ID()),
		Predecessor: uint64(revision.Predecessor()),
		Timestamp:   revision.Timestamp(),
		Contexts:    make([]string, 0),
	}

	for _, name := range revision.Content().Contexts() {
		result.Contexts = append(result.Contexts, name.String())
	}

	return result
}

// MatchDTO is a match of a pattern: variables values, window and the moments of the window
type MatchDTO struct {
	Binding map[string]string `json:"binding"`
	Window  WindowDTO         `json:"window"`
	Domain  []string          `json:"domain"`
}

// SerializeMatch returns the dto of a match, variables by name and terms in SPARQL notation
func SerializeMatch(match pattern.Match, p *pattern.Pattern, dictionary *terms.Dictionary) MatchDTO {
	// cells rendering cannot fail
	result, _ := SerializeMatchAs(match, p, dictionary, RENDER_CELLS)
	return result
}

// SerializeMatchAs is SerializeMatch with regions rendered with render
func SerializeMatchAs(match pattern.Match, p *pattern.Pattern, dictionary *terms.Dictionary, render string) (MatchDTO, error) {
	window, err := SerializeWindowAs(match.Window, render)
	if err != nil {
		return MatchDTO{}, err
	}

	result := MatchDTO{Binding: make(map[string]string), Window: window, Domain: SerializePeriod(match.Window.Domain())}
	for name, id := range match.Binding.Names(p) {
		if term, found := dictionary.Resolve(id); found {
			result.Binding[name] = term.String()
		}
	}

	return result, nil
}
