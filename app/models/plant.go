package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type CareInstructions struct {
	Difficulty  string `json:"difficulty"`
	Light       string `json:"light"`
	Water       string `json:"water"`
	Soil        string `json:"soil"`
	Temperature string `json:"temperature"`
	Humidity    string `json:"humidity"`
	Fertilizer  string `json:"fertilizer"`
}

type Characteristics struct {
	Height      string `json:"height"`
	Flowering   string `json:"flowering"`
	LeafDetails string `json:"leafDetails"`
}

type SafetyInfo struct {
	ToxicToHumans   bool    `json:"toxicToHumans"`
	ToxicToPets     bool    `json:"toxicToPets"`
	ToxicityDetails *string `json:"toxicityDetails"`
}

type Classification struct {
	Kingdom string `json:"kingdom"`
	Family  string `json:"family"`
	Genus   string `json:"genus"`
	Species string `json:"species"`
}

type PlantUse struct {
	Use        string `json:"use"`
	Applicable bool   `json:"applicable"`
}

// PlantUses is stored as a JSON text column.
type PlantUses []PlantUse

func (u PlantUses) Value() (driver.Value, error) {
	if u == nil {
		u = PlantUses{}
	}
	b, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (u *PlantUses) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*u = PlantUses{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("plant uses: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*u = PlantUses{}
		return nil
	}
	return json.Unmarshal(raw, u)
}

// PlantRecord is the persisted result of one successful identification.
// Everything but the chat log is written once at creation.
type PlantRecord struct {
	ID              string           `json:"id" gorm:"type:char(36);primaryKey"`
	Subject         string           `json:"-" gorm:"type:varchar(128);not null;index:idx_records_subject_created,priority:1"`
	CommonName      string           `json:"commonName" gorm:"type:text;not null"`
	ScientificName  string           `json:"scientificName" gorm:"type:text;not null"`
	Description     string           `json:"plantDescription" gorm:"type:text;not null"`
	Care            CareInstructions `json:"careInstructions" gorm:"embedded;embeddedPrefix:care_"`
	Characteristics Characteristics  `json:"characteristics" gorm:"embedded;embeddedPrefix:trait_"`
	Safety          SafetyInfo       `json:"safetyInfo" gorm:"embedded;embeddedPrefix:safety_"`
	Habitat         string           `json:"habitat" gorm:"type:text;not null"`
	Origin          string           `json:"origin" gorm:"type:text;not null"`
	Classification  Classification   `json:"classification" gorm:"embedded;embeddedPrefix:class_"`
	Uses            PlantUses        `json:"plantUse" gorm:"type:text;not null"`
	ImageData       []byte           `json:"-"`
	CreatedAt       time.Time        `json:"timestamp" gorm:"not null;index:idx_records_subject_created,priority:2"`

	Messages []ChatMessage `json:"-" gorm:"foreignKey:PlantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (PlantRecord) TableName() string { return "plant_records" }

type CareLevel string

const (
	CareEasy      CareLevel = "Easy"
	CareModerate  CareLevel = "Moderate"
	CareDifficult CareLevel = "Difficult"
)

type PriceRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Unit string  `json:"unit"`
}

// Identification is what a caller gets back: the persisted record plus the
// display-only fields that are never stored on it.
type Identification struct {
	Record     PlantRecord `json:"plant"`
	Confidence float64     `json:"confidence"`
	PriceRange PriceRange  `json:"priceRange"`
	CareLevel  CareLevel   `json:"careLevel"`
}
