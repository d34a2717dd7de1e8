package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// TripDocument is the YAML input of the plan command: the trip being planned and
// the traveller's saved preferences.
type TripDocument struct {
	Trip        Trip        `yaml:"trip"`
	Preferences Preferences `yaml:"preferences,omitempty"`
	Model       string      `yaml:"model,omitempty"`
	Temperature *float64    `yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

type Trip struct {
	Destination string `yaml:"destination" validate:"required"`
	StartDate   string `yaml:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `yaml:"end_date" validate:"required,datetime=2006-01-02"`
	Budget      string `yaml:"budget,omitempty"`
	Travelers   int    `yaml:"travelers,omitempty" validate:"omitempty,gte=1"`
	Notes       string `yaml:"notes,omitempty"`
}

type Preferences struct {
	Pace          string   `yaml:"pace,omitempty" validate:"omitempty,oneof=relaxed moderate packed"`
	Interests     []string `yaml:"interests,omitempty"`
	Dietary       []string `yaml:"dietary,omitempty"`
	Accommodation string   `yaml:"accommodation,omitempty"`
	Avoid         []string `yaml:"avoid,omitempty"`
}

// Nights returns the number of nights between the start and end dates.
func (t Trip) Nights() int {
	start, err1 := time.Parse(dateLayout, t.StartDate)
	end, err2 := time.Parse(dateLayout, t.EndDate)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(end.Sub(start).Hours() / 24)
}

func LoadTripDocument(path string) (*TripDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTripDocument(data)
}

func ParseTripDocument(data []byte) (*TripDocument, error) {
	var doc TripDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse trip document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if doc.Trip.Travelers == 0 {
		doc.Trip.Travelers = 1
	}
	return &doc, nil
}

func (d *TripDocument) Validate() error {
	if err := validator.New().Struct(d); err != nil {
		return fmt.Errorf("trip document validation failed: %w", err)
	}
	start, _ := time.Parse(dateLayout, d.Trip.StartDate)
	end, _ := time.Parse(dateLayout, d.Trip.EndDate)
	if end.Before(start) {
		return fmt.Errorf("trip end_date %s is before start_date %s", d.Trip.EndDate, d.Trip.StartDate)
	}
	return nil
}
