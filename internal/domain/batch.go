package domain

import (
	"strings"
	"time"
)

// Style enumerates the supported photography styles.
type Style string

const (
	StyleStudio     Style = "studio"
	StyleLifestyle  Style = "lifestyle"
	StyleOutdoor    Style = "outdoor"
	StyleEditorial  Style = "editorial"
	StyleMinimalist Style = "minimalist"
	StyleFestive    Style = "festive"
)

// AspectRatio enumerates the supported output aspect ratios.
type AspectRatio string

const (
	AspectSquare       AspectRatio = "1:1"
	AspectPortrait     AspectRatio = "4:5"
	AspectTallPortrait AspectRatio = "3:4"
	AspectWide         AspectRatio = "16:9"
	AspectVertical     AspectRatio = "9:16"
)

const (
	MinItemCount = 1
	MaxItemCount = 10

	MaxItemDelay = 10 * time.Second
)

// Media carries raw asset bytes together with their media type.
type Media struct {
	Data []byte
	MIME string
}

// IsZero reports whether the media holds no payload.
func (m Media) IsZero() bool {
	return len(m.Data) == 0
}

// BatchParameters is the immutable snapshot captured when a batch starts.
// Regeneration reuses it with only the style overridden per item.
type BatchParameters struct {
	Description  string
	ProductImage *Media
	ModelImage   *Media
	ItemCount    int
	ItemDelay    time.Duration
	Style        Style
	AspectRatio  AspectRatio
}

// Validate checks the parameter bounds. The description may be empty;
// planning can work from reference images alone.
func (p BatchParameters) Validate() error {
	if p.ItemCount < MinItemCount || p.ItemCount > MaxItemCount {
		return WrapValidation("item count must be between 1 and 10")
	}
	if p.ItemDelay < 0 || p.ItemDelay > MaxItemDelay {
		return WrapValidation("item delay must be between 0 and 10 seconds")
	}
	if !p.AspectRatio.Known() {
		return WrapValidation("unsupported aspect ratio")
	}
	if strings.TrimSpace(p.Description) == "" && (p.ProductImage == nil || p.ProductImage.IsZero()) {
		return WrapValidation("a description or a product image is required")
	}
	return nil
}

// Known reports whether the style is one of the fixed enumeration. The
// prompt builder tolerates unknown styles; this exists for input surfaces
// that want to warn early.
func (s Style) Known() bool {
	switch s {
	case StyleStudio, StyleLifestyle, StyleOutdoor, StyleEditorial, StyleMinimalist, StyleFestive:
		return true
	}
	return false
}

// Known reports whether the aspect ratio is one of the fixed enumeration.
func (a AspectRatio) Known() bool {
	switch a {
	case AspectSquare, AspectPortrait, AspectTallPortrait, AspectWide, AspectVertical:
		return true
	}
	return false
}

// NormalizeStyle sanitizes free-form input into a Style value without
// rejecting unknown names; the prompt builder has its own fallback.
func NormalizeStyle(raw string) Style {
	return Style(strings.ToLower(strings.TrimSpace(raw)))
}
