// Package ruggederr defines the typed, parameterized errors shared by the
// localization engine. Each error carries a kind identifier plus positional
// parameters; messages are rendered through a replaceable catalog so they can
// be localized without touching call sites.
package ruggederr

import "fmt"

// Kind identifies a failure category.
type Kind int

const (
	// InternalError flags an invariant violation, i.e. a bug.
	InternalError Kind = iota

	// Geometric failures.
	LineOfSightDoesNotReachGround
	LineOfSightNeverCrossesLatitude
	LineOfSightNeverCrossesLongitude
	LineOfSightNeverCrossesAltitude
	DemEntryPointIsBehindSpacecraft

	// Tile domain failures.
	OutOfTileIndices
	OutOfTileAngles
	EmptyTile
	TileWithoutRequiredNeighbors
	NoDEMData

	// Temporal failures.
	OutOfTimeRange

	// Configuration failures.
	UninitializedContext
	UnknownSensor

	// Inverse localization failures.
	GroundPointOutOfColumnRange
	TooManyEvaluations

	// Atmospheric model failures.
	NoLayerData
)

// Catalog maps kinds to fmt templates. ReplaceCatalog installs a localized
// one; missing entries fall back to the built-in English catalog.
type Catalog map[Kind]string

var english = Catalog{
	InternalError:                    "internal error, please notify development team",
	LineOfSightDoesNotReachGround:    "line of sight does not reach ground",
	LineOfSightNeverCrossesLatitude:  "line of sight never crosses latitude %.6f°",
	LineOfSightNeverCrossesLongitude: "line of sight never crosses longitude %.6f°",
	LineOfSightNeverCrossesAltitude:  "line of sight never crosses altitude %.1f m",
	DemEntryPointIsBehindSpacecraft:  "digital elevation model entry point is behind spacecraft",
	OutOfTileIndices:                 "frame indices (%d, %d) out of tile, tile coverage is (0, 0) to (%d, %d)",
	OutOfTileAngles:                  "point (%.6f°, %.6f°) out of tile, tile coverage is (%.6f°, %.6f°) to (%.6f°, %.6f°)",
	EmptyTile:                        "empty tile: %d × %d",
	TileWithoutRequiredNeighbors:     "tile selected for point (%.6f°, %.6f°) does not contain required interpolation neighbors",
	NoDEMData:                        "no digital elevation model data at point (%.6f°, %.6f°)",
	OutOfTimeRange:                   "date %s is out of time span [%s, %s]",
	UninitializedContext:             "general context has not been initialized",
	UnknownSensor:                    "unknown sensor %s",
	GroundPointOutOfColumnRange:      "ground point out of column range [%d, %d], found column %.3f",
	TooManyEvaluations:               "maximum number of solver evaluations (%d) exceeded",
	NoLayerData:                      "no atmospheric layer data at altitude %.1f m (lowest altitude: %.1f m)",
}

var active = english

// ReplaceCatalog installs a message catalog. Intended for startup
// configuration; not synchronized.
func ReplaceCatalog(c Catalog) {
	active = c
}

// Error is a parameterized engine error.
type Error struct {
	kind   Kind
	params []any
	cause  error
}

// New builds an error of the given kind with positional message parameters.
func New(kind Kind, params ...any) *Error {
	return &Error{kind: kind, params: params}
}

// Wrap builds an error of the given kind caused by another error.
func Wrap(kind Kind, cause error, params ...any) *Error {
	return &Error{kind: kind, params: params, cause: cause}
}

// Kind returns the failure category.
func (e *Error) Kind() Kind {
	return e.kind
}

// Params returns the positional message parameters.
func (e *Error) Params() []any {
	return e.params
}

func (e *Error) Error() string {
	template, ok := active[e.kind]
	if !ok {
		template = english[e.kind]
	}
	if template == "" {
		template = english[InternalError]
	}
	msg := fmt.Sprintf(template, e.params...)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsKind reports whether err (or anything it wraps) is an engine error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if re, ok := err.(*Error); ok && re.kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
