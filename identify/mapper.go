package identify

import (
	"time"

	"github.com/google/uuid"

	"github.com/adityadaniel/flora-friend/app/models"
)

// ToRecord maps a validated response onto a fresh, unsaved record with no
// owner. Confidence, price range and care level stay on the returned
// Identification only.
func ToRecord(resp Response, image []byte, now time.Time) models.Identification {
	uses := make(models.PlantUses, len(resp.Uses))
	copy(uses, resp.Uses)

	var details *string
	if resp.Safety.ToxicityDetails != nil {
		d := *resp.Safety.ToxicityDetails
		details = &d
	}

	rec := models.PlantRecord{
		ID:              uuid.NewString(),
		CommonName:      resp.CommonName,
		ScientificName:  resp.ScientificName,
		Description:     resp.Description,
		Care:            resp.Care,
		Characteristics: resp.Characteristics,
		Safety: models.SafetyInfo{
			ToxicToHumans:   resp.Safety.ToxicToHumans,
			ToxicToPets:     resp.Safety.ToxicToPets,
			ToxicityDetails: details,
		},
		Habitat:        resp.Habitat,
		Origin:         resp.Origin,
		Classification: resp.Classification,
		Uses:           uses,
		ImageData:      image,
		CreatedAt:      now.UTC(),
	}

	return models.Identification{
		Record:     rec,
		Confidence: resp.Confidence,
		PriceRange: resp.PriceRange,
		CareLevel:  resp.CareLevel,
	}
}
