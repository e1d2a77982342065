package preview

const (
	genericGlyph     = "\u25CF"     // ●
	placeholderGlyph = "\U0001F4F1" // 📱
)

// glyphs maps feature keys to the icon shown in the menu grid and the bottom navigation.
// Keys are shared by both catalogs; a key missing here falls back to genericGlyph.
var glyphs = map[string]string{
	"attendance":        "\u2705",     // ✅
	"take_attendance":   "\u2705",     // ✅
	"payments":          "\U0001F4B3", // 💳
	"hafalan":           "\U0001F4D6", // 📖
	"hafalan_review":    "\U0001F4D6", // 📖
	"report_card":       "\U0001F4CA", // 📊
	"grade_book":        "\U0001F4CA", // 📊
	"schedule":          "\U0001F4C5", // 📅
	"teaching_schedule": "\U0001F4C5", // 📅
	"announcements":     "\U0001F4E2", // 📢
	"messages":          "\U0001F4AC", // 💬
	"calendar":          "\U0001F4C6", // 📆
	"my_classes":        "\U0001F3EB", // 🏫
	"students":          "\U0001F465", // 👥
	"student_profile":   "\U0001F464", // 👤
	"profile":           "\U0001F464", // 👤
}

// shortLabels are the compact labels of the bottom navigation.
// A key missing here is shown verbatim.
var shortLabels = map[string]string{
	"attendance":        "Attendance",
	"take_attendance":   "Attend",
	"payments":          "Fees",
	"hafalan":           "Hafalan",
	"hafalan_review":    "Hafalan",
	"report_card":       "Grades",
	"grade_book":        "Grades",
	"schedule":          "Schedule",
	"teaching_schedule": "Schedule",
	"announcements":     "News",
	"messages":          "Chat",
	"calendar":          "Calendar",
	"my_classes":        "Classes",
	"students":          "Students",
	"profile":           "Me",
}

func glyphFor(key string) string {
	if g, ok := glyphs[key]; ok {
		return g
	}
	return genericGlyph
}

func shortLabelFor(key string) string {
	if l, ok := shortLabels[key]; ok {
		return l
	}
	return key
}
