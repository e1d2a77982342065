package appconfig

import (
	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core"
)

// AppKind is one of the user roles an app can be generated for.
type AppKind string

const (
	KindGuardian   AppKind = "guardian"
	KindInstructor AppKind = "instructor"
)

// Platform is a native build target.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

var (
	AllKinds     = []AppKind{KindGuardian, KindInstructor}
	AllPlatforms = []Platform{PlatformAndroid, PlatformIOS}

	errUnknownKind     = errors.New("unknown app kind")
	errUnknownPlatform = errors.New("unknown platform")
)

// ParseAppKind cleans and validates an app kind.
func ParseAppKind(s string) (AppKind, error) {
	kind := AppKind(core.CleanString(s, true /* lower */))
	for _, k := range AllKinds {
		if kind == k {
			return kind, nil
		}
	}
	return "", core.NewValidationError(errUnknownKind, core.FieldError{
		Field: "appKind",
		Error: "appKind must be one of [guardian instructor]",
	})
}

// ParsePlatform cleans and validates a platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(core.CleanString(s, true /* lower */))
	for _, pl := range AllPlatforms {
		if p == pl {
			return p, nil
		}
	}
	return "", core.NewValidationError(errUnknownPlatform, core.FieldError{
		Field: "platform",
		Error: "platform must be one of [android ios]",
	})
}

// Feature is an entry of an app kind's feature catalog.
type Feature struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// catalogs hold the features each app kind can enable, in display order.
var catalogs = map[AppKind][]Feature{
	KindGuardian: {
		{Key: "attendance", Label: "Attendance"},
		{Key: "payments", Label: "Payments & Fees"},
		{Key: "hafalan", Label: "Hafalan Progress"},
		{Key: "report_card", Label: "Report Card"},
		{Key: "schedule", Label: "Class Schedule"},
		{Key: "announcements", Label: "Announcements"},
		{Key: "messages", Label: "Messages"},
		{Key: "calendar", Label: "Academic Calendar"},
		{Key: "leave_permits", Label: "Leave Permits"},
		{Key: "student_profile", Label: "Student Profile"},
	},
	KindInstructor: {
		{Key: "take_attendance", Label: "Take Attendance"},
		{Key: "hafalan_review", Label: "Hafalan Review"},
		{Key: "my_classes", Label: "My Classes"},
		{Key: "teaching_schedule", Label: "Teaching Schedule"},
		{Key: "grade_book", Label: "Grade Book"},
		{Key: "students", Label: "Students"},
		{Key: "announcements", Label: "Announcements"},
		{Key: "messages", Label: "Messages"},
		{Key: "teaching_journal", Label: "Teaching Journal"},
		{Key: "profile", Label: "Profile"},
	},
}

// Catalog returns the feature catalog of `kind`, in declared order.
func Catalog(kind AppKind) []Feature {
	src := catalogs[kind]
	features := make([]Feature, len(src))
	copy(features, src)
	return features
}

// IsFeature reports whether `key` is in the catalog of `kind`.
func IsFeature(kind AppKind, key string) bool {
	for _, f := range catalogs[kind] {
		if f.Key == key {
			return true
		}
	}
	return false
}
