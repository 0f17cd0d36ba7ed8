package domain

import (
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

const (
	DefaultColumnWidth = 130
	MinColumnWidth     = 80
	MaxColumnWidth     = 400
)

// WeekSettings holds per-week layout and the custom banner of one user.
type WeekSettings struct {
	ID             int64       `json:"id"`
	UserID         string      `json:"userId,omitempty"`
	WeekID         string      `json:"weekId"`
	ColumnWidths   map[int]int `json:"columnWidths"`
	RowHeights     map[int]int `json:"rowHeights,omitempty"`
	CustomText     *string     `json:"customText"`
	CustomImageURL *string     `json:"customImageUrl"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// LayoutPatch updates column widths (merged per day) and row heights
// (replaced when non-nil).
type LayoutPatch struct {
	ColumnWidths map[int]int `json:"columnWidths,omitempty"`
	RowHeights   map[int]int `json:"rowHeights,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p LayoutPatch) Empty() bool { return p.ColumnWidths == nil && p.RowHeights == nil }

// Validate checks day indexes; widths outside the allowed range are clamped by Normalize.
func (p LayoutPatch) Validate() error {
	if p.Empty() {
		return invalid("patch", "no fields to update")
	}
	for day := range p.ColumnWidths {
		if day < 0 || day >= DaysPerWeek {
			return invalid("columnWidths", "day must be between 0 and 6")
		}
	}
	for row, h := range p.RowHeights {
		if row < 0 || h < 0 {
			return invalid("rowHeights", "must not be negative")
		}
	}
	return nil
}

// Normalize returns a copy with every column width clamped.
func (p LayoutPatch) Normalize() LayoutPatch {
	if p.ColumnWidths == nil {
		return p
	}
	widths := make(map[int]int, len(p.ColumnWidths))
	for day, w := range p.ColumnWidths {
		widths[day] = ClampColumnWidth(w)
	}
	p.ColumnWidths = widths
	return p
}

// CustomContentPatch updates the banner text and image independently.
type CustomContentPatch struct {
	CustomText     OptionalString `json:"customText"`
	CustomImageURL OptionalString `json:"customImageUrl"`
}

// Empty reports whether the patch changes nothing.
func (p CustomContentPatch) Empty() bool { return !p.CustomText.Set && !p.CustomImageURL.Set }

func (p CustomContentPatch) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 2)
	if p.CustomText.Set {
		body["customText"] = p.CustomText
	}
	if p.CustomImageURL.Set {
		body["customImageUrl"] = p.CustomImageURL
	}
	return sonic.Marshal(body)
}

// SettingsPatch combines layout and banner updates of one week.
type SettingsPatch struct {
	Layout  LayoutPatch
	Content CustomContentPatch
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool { return p.Layout.Empty() && p.Content.Empty() }

// Validate checks whichever halves are present.
func (p SettingsPatch) Validate() error {
	if p.Empty() {
		return invalid("patch", "no fields to update")
	}
	if !p.Layout.Empty() {
		return p.Layout.Validate()
	}
	return nil
}

// Apply merges the patch into s without modifying maps of s in place.
func (p SettingsPatch) Apply(s WeekSettings) WeekSettings {
	if p.Layout.ColumnWidths != nil {
		widths := make(map[int]int, len(s.ColumnWidths)+len(p.Layout.ColumnWidths))
		for k, v := range s.ColumnWidths {
			widths[k] = v
		}
		for k, v := range p.Layout.Normalize().ColumnWidths {
			widths[k] = v
		}
		s.ColumnWidths = widths
	}
	if p.Layout.RowHeights != nil {
		heights := make(map[int]int, len(p.Layout.RowHeights))
		for k, v := range p.Layout.RowHeights {
			heights[k] = v
		}
		s.RowHeights = heights
	}
	s.CustomText = p.Content.CustomText.ApplyTo(s.CustomText)
	s.CustomImageURL = p.Content.CustomImageURL.ApplyTo(s.CustomImageURL)
	return s
}

// ClampColumnWidth keeps w within the resizable range.
func ClampColumnWidth(w int) int {
	if w < MinColumnWidth {
		return MinColumnWidth
	}
	if w > MaxColumnWidth {
		return MaxColumnWidth
	}
	return w
}

// EffectiveColumnWidths fills every day of the week, using the default for
// days without a stored width.
func EffectiveColumnWidths(stored map[int]int) [DaysPerWeek]int {
	var out [DaysPerWeek]int
	for i := range out {
		out[i] = DefaultColumnWidth
		if w, ok := stored[i]; ok && w > 0 {
			out[i] = w
		}
	}
	return out
}

// EncodeDimensions renders a sparse index to pixel map for a text column.
func EncodeDimensions(m map[int]int) string {
	if len(m) == 0 {
		return "{}"
	}
	body := make(map[string]int, len(m))
	for k, v := range m {
		body[strconv.Itoa(k)] = v
	}
	data, err := sonic.ConfigStd.Marshal(body)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParseDimensions decodes a stored text column. Malformed input yields an
// empty map together with the decode error.
func ParseDimensions(raw string) (map[int]int, error) {
	out := map[int]int{}
	if raw == "" {
		return out, nil
	}
	var body map[string]float64
	if err := sonic.UnmarshalString(raw, &body); err != nil {
		return map[int]int{}, err
	}
	for k, v := range body {
		n, err := strconv.Atoi(k)
		if err != nil {
			return map[int]int{}, err
		}
		out[n] = int(v)
	}
	return out, nil
}
