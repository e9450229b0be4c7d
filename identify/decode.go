package identify

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/adityadaniel/flora-friend/app/models"
)

//go:embed plant_schema.json
var plantSchema []byte

// SchemaName is the name the schema is registered under in the request.
const SchemaName = "plantID"

// Schema returns the JSON schema descriptor sent with every vision call.
func Schema() json.RawMessage {
	out := make([]byte, len(plantSchema))
	copy(out, plantSchema)
	return out
}

// Response is a validated identification answer.
type Response struct {
	CommonName      string
	ScientificName  string
	Description     string
	Confidence      float64
	Care            models.CareInstructions
	Characteristics models.Characteristics
	Safety          models.SafetyInfo
	Habitat         string
	Origin          string
	Classification  models.Classification
	Uses            []models.PlantUse
	PriceRange      models.PriceRange
	CareLevel       models.CareLevel
}

// Pointer fields let validation tell a missing field from a zero value.
type wireResponse struct {
	CommonName       *string             `json:"commonName" validate:"required"`
	ScientificName   *string             `json:"scientificName" validate:"required"`
	PlantDescription *string             `json:"plantDescription" validate:"required"`
	Confidence       *float64            `json:"confidence" validate:"required,gte=0,lte=1"`
	CareInstructions *wireCare           `json:"careInstructions" validate:"required"`
	Characteristics  *wireCharacteristic `json:"characteristics" validate:"required"`
	SafetyInfo       *wireSafety         `json:"safetyInfo" validate:"required"`
	Habitat          *string             `json:"habitat" validate:"required"`
	Origin           *string             `json:"origin" validate:"required"`
	Classification   *wireClassification `json:"classification" validate:"required"`
	Uses             []wireUse           `json:"uses" validate:"required,dive"`
	PriceRange       *wirePriceRange     `json:"priceRange" validate:"required"`
	CareLevel        *string             `json:"careLevel" validate:"required,oneof=Easy Moderate Difficult"`
}

type wireCare struct {
	Difficulty  *string `json:"difficulty" validate:"required"`
	Light       *string `json:"light" validate:"required"`
	Water       *string `json:"water" validate:"required"`
	Soil        *string `json:"soil" validate:"required"`
	Temperature *string `json:"temperature" validate:"required"`
	Humidity    *string `json:"humidity" validate:"required"`
	Fertilizer  *string `json:"fertilizer" validate:"required"`
}

type wireCharacteristic struct {
	Height      *string `json:"height" validate:"required"`
	Flowering   *string `json:"flowering" validate:"required"`
	LeafDetails *string `json:"leafDetails" validate:"required"`
}

type wireSafety struct {
	ToxicToHumans   *bool   `json:"toxicToHumans" validate:"required"`
	ToxicToPets     *bool   `json:"toxicToPets" validate:"required"`
	ToxicityDetails *string `json:"toxicityDetails"`
}

type wireClassification struct {
	Kingdom *string `json:"kingdom" validate:"required"`
	Family  *string `json:"family" validate:"required"`
	Genus   *string `json:"genus" validate:"required"`
	Species *string `json:"species" validate:"required"`
}

type wireUse struct {
	Use        *string `json:"use" validate:"required"`
	Applicable *bool   `json:"applicable" validate:"required"`
}

type wirePriceRange struct {
	Min  *float64 `json:"min" validate:"required"`
	Max  *float64 `json:"max" validate:"required"`
	Unit *string  `json:"unit" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode validates raw against the identification schema. Any missing
// required field, wrong JSON type or out-of-range value yields a
// *DecodingError; nothing is returned alongside it.
func Decode(raw []byte) (Response, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Response{}, &DecodingError{Err: errors.New("empty response")}
	}

	var w wireResponse
	if err := json.Unmarshal(raw, &w); err != nil {
		return Response{}, decodeFailure(err)
	}
	if err := validate.Struct(&w); err != nil {
		return Response{}, validationFailure(err)
	}

	uses := make([]models.PlantUse, 0, len(w.Uses))
	for _, u := range w.Uses {
		uses = append(uses, models.PlantUse{Use: *u.Use, Applicable: *u.Applicable})
	}

	return Response{
		CommonName:     *w.CommonName,
		ScientificName: *w.ScientificName,
		Description:    *w.PlantDescription,
		Confidence:     *w.Confidence,
		Care: models.CareInstructions{
			Difficulty:  *w.CareInstructions.Difficulty,
			Light:       *w.CareInstructions.Light,
			Water:       *w.CareInstructions.Water,
			Soil:        *w.CareInstructions.Soil,
			Temperature: *w.CareInstructions.Temperature,
			Humidity:    *w.CareInstructions.Humidity,
			Fertilizer:  *w.CareInstructions.Fertilizer,
		},
		Characteristics: models.Characteristics{
			Height:      *w.Characteristics.Height,
			Flowering:   *w.Characteristics.Flowering,
			LeafDetails: *w.Characteristics.LeafDetails,
		},
		Safety: models.SafetyInfo{
			ToxicToHumans:   *w.SafetyInfo.ToxicToHumans,
			ToxicToPets:     *w.SafetyInfo.ToxicToPets,
			ToxicityDetails: w.SafetyInfo.ToxicityDetails,
		},
		Habitat: *w.Habitat,
		Origin:  *w.Origin,
		Classification: models.Classification{
			Kingdom: *w.Classification.Kingdom,
			Family:  *w.Classification.Family,
			Genus:   *w.Classification.Genus,
			Species: *w.Classification.Species,
		},
		Uses: uses,
		PriceRange: models.PriceRange{
			Min:  *w.PriceRange.Min,
			Max:  *w.PriceRange.Max,
			Unit: *w.PriceRange.Unit,
		},
		CareLevel: models.CareLevel(*w.CareLevel),
	}, nil
}

func decodeFailure(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "$"
		}
		return &DecodingError{
			Fields: []FieldError{{Field: field, Reason: "must be " + jsonKind(typeErr.Type)}},
			Err:    err,
		}
	}
	return &DecodingError{Err: err}
}

func validationFailure(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &DecodingError{Err: err}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldPath(fe.Namespace()), Reason: reason(fe)})
	}
	return &DecodingError{Fields: fields, Err: err}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	default:
		return "failed " + fe.Tag()
	}
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64:
		return "a number"
	case reflect.Slice:
		return "an array"
	case reflect.Struct:
		return "an object"
	default:
		return t.String()
	}
}
