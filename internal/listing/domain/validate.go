package domain

import "strings"

// Validate checks every mandatory field of a create. It never touches the
// network, so callers can run it before any upload.
func (d Draft) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if !d.Species.Valid() {
		missing = append(missing, "species")
	}
	if strings.TrimSpace(d.Breed) == "" {
		missing = append(missing, "breed")
	}
	if d.Age == nil || *d.Age < 0 {
		missing = append(missing, "age")
	}
	if !d.Purpose.Valid() {
		missing = append(missing, "purpose")
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(d.Location) == "" {
		missing = append(missing, "location")
	}
	if len(d.Images) == 0 {
		missing = append(missing, "images")
	}
	for _, img := range d.Images {
		if len(img.Data) == 0 {
			missing = append(missing, "images")
			break
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Validate rejects blank strings, negative ages and values outside the
// enumerations. A patch that changes nothing is also rejected.
func (p Patch) Validate() error {
	var bad []string
	blank := func(s *string) bool { return s != nil && strings.TrimSpace(*s) == "" }
	if blank(p.Name) {
		bad = append(bad, "name")
	}
	if p.Species != nil && !p.Species.Valid() {
		bad = append(bad, "species")
	}
	if blank(p.Breed) {
		bad = append(bad, "breed")
	}
	if p.Age != nil && *p.Age < 0 {
		bad = append(bad, "age")
	}
	if p.Purpose != nil && !p.Purpose.Valid() {
		bad = append(bad, "purpose")
	}
	if blank(p.Description) {
		bad = append(bad, "description")
	}
	if blank(p.Location) {
		bad = append(bad, "location")
	}
	if p.Image != nil && len(p.Image.Data) == 0 {
		bad = append(bad, "image")
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	if !p.HasFieldChanges() && p.Image == nil {
		return &ValidationError{Fields: []string{"patch"}}
	}
	return nil
}
