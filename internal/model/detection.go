package model

import (
	"encoding/json"
	"time"
)

// Detection records one completed inference. Codes and Classes are stored as JSON arrays.
// DetectionID is assigned by the gateway; RequestID may repeat when clients retry.
type Detection struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DetectionID string    `gorm:"size:36;not null;uniqueIndex" json:"detection_id"`
	RequestID   string    `gorm:"size:36;index" json:"request_id"`
	ModelID     string    `gorm:"size:128;not null;index" json:"model_id"`
	Filename    string    `gorm:"size:255" json:"filename"`
	ImageSHA256 string    `gorm:"size:64;index" json:"image_sha256"`
	Cached      bool      `json:"cached"`
	Codes       string    `gorm:"type:text" json:"-"`
	Classes     string    `gorm:"type:text" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClassList returns the parsed display names; empty on parse error.
func (d *Detection) ClassList() []string {
	return decodeList(d.Classes)
}

// CodeList returns the parsed class codes; empty on parse error.
func (d *Detection) CodeList() []string {
	return decodeList(d.Codes)
}

func (d *Detection) SetClasses(names []string) {
	d.Classes = encodeList(names)
}

func (d *Detection) SetCodes(codes []string) {
	d.Codes = encodeList(codes)
}

// MarshalJSON exposes the stored lists as arrays instead of JSON-in-a-string.
func (d Detection) MarshalJSON() ([]byte, error) {
	type plain Detection
	return json.Marshal(struct {
		plain
		CodeList  []string `json:"codes"`
		ClassList []string `json:"classes"`
	}{plain(d), d.CodeList(), d.ClassList()})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (d *Detection) UnmarshalJSON(data []byte) error {
	type plain Detection
	var aux struct {
		plain
		CodeList  []string `json:"codes"`
		ClassList []string `json:"classes"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Detection(aux.plain)
	d.SetCodes(aux.CodeList)
	d.SetClasses(aux.ClassList)
	return nil
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func decodeList(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
