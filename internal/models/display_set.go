package models

import (
	"strconv"
	"strings"
)

// DisplaySet is one displayable unit of imaging content, usually a series.
type DisplaySet struct {
	UID               string            `json:"uid" yaml:"uid"`
	StudyUID          string            `json:"study_uid" yaml:"study_uid"`
	SeriesUID         string            `json:"series_uid" yaml:"series_uid"`
	Modality          string            `json:"modality,omitempty" yaml:"modality,omitempty"`
	SeriesDescription string            `json:"series_description,omitempty" yaml:"series_description,omitempty"`
	SeriesNumber      int               `json:"series_number,omitempty" yaml:"series_number,omitempty"`
	NumImages         int               `json:"num_images,omitempty" yaml:"num_images,omitempty"`
	Attributes        map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Attribute looks up a named attribute for rule matching.
func (d DisplaySet) Attribute(name string) string {
	switch strings.ToLower(name) {
	case "uid", "displaysetinstanceuid":
		return d.UID
	case "studyinstanceuid", "study_uid":
		return d.StudyUID
	case "seriesinstanceuid", "series_uid":
		return d.SeriesUID
	case "modality":
		return d.Modality
	case "seriesdescription", "series_description":
		return d.SeriesDescription
	case "seriesnumber", "series_number":
		return strconv.Itoa(d.SeriesNumber)
	case "numimages", "num_images":
		return strconv.Itoa(d.NumImages)
	}
	if d.Attributes == nil {
		return ""
	}
	return d.Attributes[name]
}
