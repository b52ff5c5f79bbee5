// Package normalize turns raw scraped records into canonical ones: collapsed
// whitespace, a resolved category and validated required fields.
package normalize

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"city_ingest/internal/apperr"
	"city_ingest/internal/extract"
	"city_ingest/internal/fetch"
	"city_ingest/internal/models"
)

// categoryTable maps free-text category hints (lower-cased) onto the fixed
// enumeration. Unmapped hints resolve to CategoryOther.
var categoryTable = map[string]models.Category{
	"event":         models.CategoryEvents,
	"events":        models.CategoryEvents,
	"festival":      models.CategoryEvents,
	"concert":       models.CategoryEvents,
	"business":      models.CategoryBusinesses,
	"businesses":    models.CategoryBusinesses,
	"shop":          models.CategoryBusinesses,
	"restaurant":    models.CategoryBusinesses,
	"news":          models.CategoryNews,
	"announcement":  models.CategoryNews,
	"press release": models.CategoryNews,
	"community":     models.CategoryCommunity,
	"volunteer":     models.CategoryCommunity,
	"sports":        models.CategorySports,
	"recreation":    models.CategorySports,
}

// MapCategory resolves a free-text hint to a fixed category.
func MapCategory(hint string) models.Category {
	key := strings.ToLower(fetch.CollapseWhitespace(hint))
	if c, ok := categoryTable[key]; ok {
		return c
	}
	return models.CategoryOther
}

// Normalizer builds NormalizedRecords for one source, running the date/time
// extractor in the civic timezone.
type Normalizer struct {
	sourceName string
	civicLoc   *time.Location
}

func New(sourceName string, civicLoc *time.Location) *Normalizer {
	return &Normalizer{sourceName: sourceName, civicLoc: civicLoc}
}

// Normalize converts one raw record. It returns a *apperr.ParseError when the
// date/time text does not match any pattern and a *apperr.ValidationError
// when a required field is missing; neither is fatal to the run.
func (n *Normalizer) Normalize(raw models.RawRecord) (*models.NormalizedRecord, error) {
	var res extract.Result
	if raw.StartAt != nil {
		// Structured times from the adapter take precedence over text.
		res = extract.Result{Start: raw.StartAt.In(n.civicLoc), End: raw.EndAt}
	} else {
		var err error
		res, err = extract.Extract(raw.DateTimeText, n.civicLoc)
		if err != nil {
			return nil, err
		}
	}

	location := fetch.CollapseWhitespace(raw.LocationText)
	if res.Location != "" {
		location = res.Location
	}

	rec := &models.NormalizedRecord{
		Title:       fetch.CollapseWhitespace(raw.Title),
		StartAt:     res.Start,
		EndAt:       res.End,
		Location:    location,
		Category:    MapCategory(raw.CategoryHint),
		SourceName:  n.sourceName,
		SourceURL:   fetch.CollapseWhitespace(raw.SourceURL),
		Description: fetch.CollapseWhitespace(raw.Description),
	}

	if err := validate(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// validate enforces the required-field contract: title, startAt, sourceName
// and sourceURL must be present and non-empty.
func validate(rec *models.NormalizedRecord) error {
	err := validation.ValidateStruct(rec,
		validation.Field(&rec.Title, validation.Required),
		validation.Field(&rec.SourceName, validation.Required),
		validation.Field(&rec.SourceURL, validation.Required),
	)
	if err != nil {
		if errs, ok := err.(validation.Errors); ok {
			for field, ferr := range errs {
				return &apperr.ValidationError{Field: strings.ToLower(field), Reason: ferr.Error()}
			}
		}
		return &apperr.ValidationError{Field: "record", Reason: err.Error()}
	}

	if rec.StartAt.IsZero() {
		return &apperr.ValidationError{Field: "startAt", Reason: "cannot be blank"}
	}
	return nil
}
